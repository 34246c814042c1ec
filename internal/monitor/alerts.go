package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openindex-dev/openindex/internal/logger"
)

// Severity ranks an alert rule's urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Condition compares a metric value against a rule threshold.
type Condition string

const (
	ConditionGreater  Condition = ">"
	ConditionLess     Condition = "<"
	ConditionEqual    Condition = "="
	ConditionNotEqual Condition = "!="
)

// AlertAction names a delivery channel for a fired alert.
type AlertAction string

const (
	ActionLog     AlertAction = "log"
	ActionEmail   AlertAction = "email"
	ActionWebhook AlertAction = "webhook"
)

// AlertRule declares a threshold over a named metric.
type AlertRule struct {
	ID         string
	Name       string
	MetricName string
	Condition  Condition
	Threshold  float64
	Severity   Severity
	Enabled    bool
	Actions    []AlertAction
}

// Alert is one firing of a rule. Resolution and acknowledgement mutate
// the copy held by the monitor.
type Alert struct {
	ID           string
	RuleID       string
	Name         string
	Severity     Severity
	Value        float64
	Threshold    float64
	FiredAt      time.Time
	ResolvedAt   *time.Time
	Acknowledged bool
}

// ActionHandler delivers a fired alert over a non-log channel. The
// default handler only records a warning; hosts wire email or webhook
// delivery here.
type ActionHandler func(action AlertAction, alert Alert)

// SetActionHandler installs a delivery handler for email and webhook
// actions. Log actions always go through the process logger.
func (m *Monitor) SetActionHandler(h ActionHandler) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	m.actionHandler = h
}

// AddRule registers or replaces an alert rule.
func (m *Monitor) AddRule(rule AlertRule) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	r := rule
	m.rules[rule.ID] = &r
}

// RemoveRule deletes a rule. A firing alert for the rule is resolved
// and archived immediately; evaluation only visits live rules, so it
// could never resolve the alert afterwards.
func (m *Monitor) RemoveRule(id string) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	delete(m.rules, id)
	if alert, ok := m.active[id]; ok {
		m.resolveLocked(id, alert)
		logger.Info("alert resolved: %s (rule removed)", alert.Name)
	}
}

// ActiveAlerts returns the currently firing alerts.
func (m *Monitor) ActiveAlerts() []Alert {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, *a)
	}
	return out
}

// AlertHistory returns resolved alerts, oldest first.
func (m *Monitor) AlertHistory() []Alert {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	out := make([]Alert, len(m.history))
	copy(out, m.history)
	return out
}

// Acknowledge marks an active alert as seen. Returns false when no
// active alert carries the id.
func (m *Monitor) Acknowledge(alertID string) bool {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	for _, a := range m.active {
		if a.ID == alertID {
			a.Acknowledged = true
			return true
		}
	}
	return false
}

// EvaluateRules runs every enabled rule against current metric values,
// firing and resolving alerts on state transitions.
func (m *Monitor) EvaluateRules() {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()

	for id, rule := range m.rules {
		value, ok := m.metricValue(rule.MetricName)
		if !ok {
			continue
		}
		firing := rule.Enabled && compare(value, rule.Condition, rule.Threshold)
		existing, active := m.active[id]

		switch {
		case firing && !active:
			alert := &Alert{
				ID:        uuid.NewString(),
				RuleID:    rule.ID,
				Name:      rule.Name,
				Severity:  rule.Severity,
				Value:     value,
				Threshold: rule.Threshold,
				FiredAt:   m.now(),
			}
			m.active[id] = alert
			m.dispatch(rule, *alert)
		case !firing && active:
			m.resolveLocked(id, existing)
			logger.Info("alert resolved: %s (value %.2f)", existing.Name, value)
		}
	}
}

// resolveLocked stamps an active alert resolved and moves it into the
// bounded history. Callers hold m.alertMu.
func (m *Monitor) resolveLocked(ruleID string, alert *Alert) {
	at := m.now()
	alert.ResolvedAt = &at
	delete(m.active, ruleID)
	m.history = append(m.history, *alert)
	if len(m.history) > alertHistorySize {
		m.history = m.history[len(m.history)-alertHistorySize:]
	}
}

// dispatch fires a rule's actions. Callers hold m.alertMu.
func (m *Monitor) dispatch(rule *AlertRule, alert Alert) {
	for _, action := range rule.Actions {
		if action == ActionLog {
			logger.Warn("alert fired: %s [%s] %s %s %.2f (value %.2f)",
				rule.Name, rule.Severity, rule.MetricName, rule.Condition,
				rule.Threshold, alert.Value)
			continue
		}
		if m.actionHandler != nil {
			m.actionHandler(action, alert)
		} else {
			logger.Warn("alert fired: %s [%s] (no %s handler configured)",
				rule.Name, rule.Severity, action)
		}
	}
}

// metricValue resolves a rule's metric name to its current value.
func (m *Monitor) metricValue(name string) (float64, bool) {
	switch name {
	case "cpu_percent":
		m.sysMu.RLock()
		defer m.sysMu.RUnlock()
		return m.cpuPercent, true
	case "memory_percent":
		m.sysMu.RLock()
		defer m.sysMu.RUnlock()
		return m.memPercent, true
	case "error_rate":
		return m.ErrorRate(), true
	case "requests":
		return float64(m.requests.Load()), true
	case "errors":
		return float64(m.errors.Load()), true
	case "auth_failures":
		return float64(m.authFailures.Load()), true
	case "rate_limit_violations":
		return float64(m.rateLimitViolations.Load()), true
	case "active_connections":
		return float64(m.activeConnections.Load()), true
	case "active_sessions":
		return float64(m.activeSessions.Load()), true
	case "response_time_avg":
		return m.responseTimes.Average(), true
	case "response_time_p95":
		return m.responseTimes.Percentile(95), true
	case "response_time_p99":
		return m.responseTimes.Percentile(99), true
	case "db_query_time_avg":
		return m.dbQueryTimes.Average(), true
	case "search_query_time_avg":
		return m.queryTimes.Average(), true
	case "health_score":
		return m.HealthScore(), true
	default:
		return 0, false
	}
}

func compare(value float64, cond Condition, threshold float64) bool {
	switch cond {
	case ConditionGreater:
		return value > threshold
	case ConditionLess:
		return value < threshold
	case ConditionEqual:
		return value == threshold
	case ConditionNotEqual:
		return value != threshold
	default:
		return false
	}
}

// String renders a severity for logs.
func (s Severity) String() string { return string(s) }

// Validate rejects malformed rules before registration.
func (r *AlertRule) Validate() error {
	if r.ID == "" || r.Name == "" || r.MetricName == "" {
		return fmt.Errorf("alert rule requires id, name and metric name")
	}
	switch r.Condition {
	case ConditionGreater, ConditionLess, ConditionEqual, ConditionNotEqual:
	default:
		return fmt.Errorf("alert rule %s: unknown condition %q", r.ID, r.Condition)
	}
	return nil
}
