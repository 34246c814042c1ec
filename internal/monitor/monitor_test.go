package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndErrorRate(t *testing.T) {
	m := New()

	for i := 0; i < 98; i++ {
		m.RecordRequest(10, false)
	}
	m.RecordRequest(10, true)
	m.RecordRequest(10, true)
	m.RecordAuthFailure()
	m.RecordRateLimitViolation()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SessionStarted()

	assert.Equal(t, uint64(100), m.Requests())
	assert.Equal(t, uint64(2), m.Errors())
	assert.Equal(t, uint64(1), m.AuthFailures())
	assert.Equal(t, uint64(1), m.RateLimitViolations())
	assert.Equal(t, int64(1), m.ActiveConnections())
	assert.Equal(t, int64(1), m.ActiveSessions())
	assert.InDelta(t, 0.02, m.ErrorRate(), 1e-9)
}

func TestHealthScoreDeductions(t *testing.T) {
	tests := []struct {
		name string
		cpu  float64
		mem  float64
		want float64
	}{
		{"healthy", 10, 10, 1.0},
		{"cpu warning", 65, 10, 0.9},
		{"cpu critical", 90, 10, 0.7},
		{"memory warning", 10, 75, 0.9},
		{"memory critical", 10, 90, 0.7},
		{"both critical", 90, 90, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.SetSystemStats(tt.cpu, tt.mem, 0)
			assert.InDelta(t, tt.want, m.HealthScore(), 1e-9)
		})
	}
}

func TestHealthScoreErrorRateAndLatency(t *testing.T) {
	m := New()
	// 10% error rate trips the critical deduction.
	for i := 0; i < 9; i++ {
		m.RecordRequest(2500, false)
	}
	m.RecordRequest(2500, true)

	// 0.4 for error rate plus 0.2 for average response time.
	assert.InDelta(t, 0.4, m.HealthScore(), 1e-9)
}

func TestHealthScoreClampsAtZero(t *testing.T) {
	m := New()
	m.SetSystemStats(95, 95, 0)
	for i := 0; i < 2; i++ {
		m.RecordRequest(3000, true)
	}
	assert.Equal(t, 0.0, m.HealthScore())
}

func TestCollectBoundsSeries(t *testing.T) {
	m := New(WithSeriesSize(3))
	m.SetSystemStats(42, 24, 1024)

	for i := 0; i < 5; i++ {
		m.RecordRequest(float64(i+1)*10, false)
		m.Collect()
	}

	series := m.Series()
	require.Len(t, series, 3)
	last := series[2]
	assert.Equal(t, 42.0, last.CPUPercent)
	assert.Equal(t, 24.0, last.MemoryPercent)
	assert.Equal(t, uint64(1024), last.IOBytes)
	assert.Equal(t, uint64(5), last.Requests)
	assert.Greater(t, last.ResponseP95, 0.0)
}

func TestAlertFireResolveAcknowledge(t *testing.T) {
	m := New()
	m.AddRule(AlertRule{
		ID:         "high-errors",
		Name:       "High error rate",
		MetricName: "error_rate",
		Condition:  ConditionGreater,
		Threshold:  0.5,
		Severity:   SeverityCritical,
		Enabled:    true,
		Actions:    []AlertAction{ActionLog},
	})

	// Below threshold: nothing fires.
	m.RecordRequest(10, false)
	m.EvaluateRules()
	assert.Empty(t, m.ActiveAlerts())

	// Every request failing pushes the rate to 0.5+; fire once.
	for i := 0; i < 9; i++ {
		m.RecordRequest(10, true)
	}
	m.EvaluateRules()
	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "high-errors", active[0].RuleID)
	assert.Equal(t, SeverityCritical, active[0].Severity)
	assert.NotEmpty(t, active[0].ID)
	assert.Nil(t, active[0].ResolvedAt)

	// Still firing: no duplicate alert.
	m.EvaluateRules()
	assert.Len(t, m.ActiveAlerts(), 1)

	assert.True(t, m.Acknowledge(active[0].ID))
	assert.False(t, m.Acknowledge("unknown"))
	assert.True(t, m.ActiveAlerts()[0].Acknowledged)

	// Recovery: enough successes to drop the rate below threshold.
	for i := 0; i < 30; i++ {
		m.RecordRequest(10, false)
	}
	m.EvaluateRules()
	assert.Empty(t, m.ActiveAlerts())

	history := m.AlertHistory()
	require.Len(t, history, 1)
	assert.NotNil(t, history[0].ResolvedAt)
	assert.True(t, history[0].Acknowledged)
}

func TestRemoveRuleResolvesFiringAlert(t *testing.T) {
	m := New()
	m.AddRule(AlertRule{
		ID:         "connections",
		Name:       "Connections open",
		MetricName: "active_connections",
		Condition:  ConditionGreater,
		Threshold:  0,
		Severity:   SeverityLow,
		Enabled:    true,
	})
	m.ConnectionOpened()
	m.EvaluateRules()
	require.Len(t, m.ActiveAlerts(), 1)

	// Removing the rule while its alert fires must not strand the
	// alert: evaluation only visits live rules.
	m.RemoveRule("connections")
	m.ConnectionClosed()
	m.EvaluateRules()

	assert.Empty(t, m.ActiveAlerts())
	history := m.AlertHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "connections", history[0].RuleID)
	assert.NotNil(t, history[0].ResolvedAt)
}

func TestRemoveRuleWithoutActiveAlert(t *testing.T) {
	m := New()
	m.AddRule(AlertRule{
		ID:         "idle",
		Name:       "Idle rule",
		MetricName: "requests",
		Condition:  ConditionGreater,
		Threshold:  100,
		Severity:   SeverityLow,
		Enabled:    true,
	})
	m.RemoveRule("idle")
	m.EvaluateRules()
	assert.Empty(t, m.ActiveAlerts())
	assert.Empty(t, m.AlertHistory())
}

func TestDisabledRuleNeverFires(t *testing.T) {
	m := New()
	m.AddRule(AlertRule{
		ID:         "disabled",
		Name:       "Disabled rule",
		MetricName: "requests",
		Condition:  ConditionGreater,
		Threshold:  0,
		Severity:   SeverityLow,
		Enabled:    false,
	})
	m.RecordRequest(10, false)
	m.EvaluateRules()
	assert.Empty(t, m.ActiveAlerts())
}

func TestActionHandlerReceivesNonLogActions(t *testing.T) {
	m := New()
	var got []AlertAction
	m.SetActionHandler(func(action AlertAction, _ Alert) {
		got = append(got, action)
	})
	m.AddRule(AlertRule{
		ID:         "cpu",
		Name:       "CPU high",
		MetricName: "cpu_percent",
		Condition:  ConditionGreater,
		Threshold:  50,
		Severity:   SeverityHigh,
		Enabled:    true,
		Actions:    []AlertAction{ActionWebhook, ActionEmail, ActionLog},
	})
	m.SetSystemStats(75, 0, 0)
	m.EvaluateRules()

	assert.Equal(t, []AlertAction{ActionWebhook, ActionEmail}, got)
}

func TestAlertRuleValidate(t *testing.T) {
	valid := AlertRule{ID: "r", Name: "n", MetricName: "requests", Condition: ConditionGreater}
	assert.NoError(t, valid.Validate())

	missing := AlertRule{Condition: ConditionGreater}
	assert.Error(t, missing.Validate())

	badCond := AlertRule{ID: "r", Name: "n", MetricName: "requests", Condition: ">="}
	assert.Error(t, badCond.Validate())
}

func TestUnknownMetricIsSkipped(t *testing.T) {
	m := New()
	m.AddRule(AlertRule{
		ID:         "bogus",
		Name:       "Bogus metric",
		MetricName: "no_such_metric",
		Condition:  ConditionGreater,
		Threshold:  0,
		Severity:   SeverityLow,
		Enabled:    true,
	})
	m.EvaluateRules()
	assert.Empty(t, m.ActiveAlerts())
}

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.RecordRequest(125, false)
	m.RecordRequest(250, true)
	m.RecordDBQuery(5)
	m.ConnectionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "openindex_requests_total 2"))
	assert.True(t, strings.Contains(text, "openindex_errors_total 1"))
	assert.True(t, strings.Contains(text, "openindex_active_connections 1"))
	assert.True(t, strings.Contains(text, "openindex_health_score"))
}

func TestCollectTimestampsAdvance(t *testing.T) {
	m := New()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	current := base
	m.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}

	first := m.Collect()
	second := m.Collect()
	assert.True(t, second.Timestamp.After(first.Timestamp))
}
