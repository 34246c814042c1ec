// Package monitor collects runtime performance data: atomic counters,
// sliding response-time windows, bounded time-series snapshots, alert
// rule evaluation, and a Prometheus export surface.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// defaultCollectionInterval spaces time-series snapshots.
	defaultCollectionInterval = 10 * time.Second
	// alertEvaluationInterval spaces alert rule evaluation.
	alertEvaluationInterval = 30 * time.Second
	// defaultSeriesSize bounds the snapshot ring.
	defaultSeriesSize = 360
	// alertHistorySize bounds resolved alert retention.
	alertHistorySize = 100
)

// Snapshot is one time-series sample of system and application metrics.
type Snapshot struct {
	Timestamp         time.Time
	CPUPercent        float64
	MemoryPercent     float64
	IOBytes           uint64
	ActiveConnections int64
	Requests          uint64
	Errors            uint64
	ResponseP50       float64
	ResponseP95       float64
	ResponseP99       float64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCollectionInterval sets the snapshot spacing.
func WithCollectionInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.collectionInterval = d
		}
	}
}

// WithSeriesSize bounds the number of retained snapshots.
func WithSeriesSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.seriesSize = n
		}
	}
}

// Monitor aggregates counters, trackers and alerts for the process.
type Monitor struct {
	requests            atomic.Uint64
	errors              atomic.Uint64
	authFailures        atomic.Uint64
	rateLimitViolations atomic.Uint64
	activeConnections   atomic.Int64
	activeSessions      atomic.Int64

	responseTimes *Tracker
	dbQueryTimes  *Tracker
	queryTimes    *Tracker

	// System stats are pushed by the host process; the monitor does not
	// sample the OS itself.
	sysMu      sync.RWMutex
	cpuPercent float64
	memPercent float64
	ioBytes    uint64

	seriesMu   sync.RWMutex
	series     []Snapshot
	seriesSize int

	alertMu       sync.Mutex
	rules         map[string]*AlertRule
	active        map[string]*Alert // keyed by rule id
	history       []Alert
	actionHandler ActionHandler

	collectionInterval time.Duration
	now                func() time.Time
}

// New creates a monitor with default window sizes.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		responseTimes:      NewTracker(defaultTrackerSize),
		dbQueryTimes:       NewTracker(defaultTrackerSize),
		queryTimes:         NewTracker(defaultTrackerSize),
		seriesSize:         defaultSeriesSize,
		rules:              make(map[string]*AlertRule),
		active:             make(map[string]*Alert),
		collectionInterval: defaultCollectionInterval,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordRequest counts one request and its response time.
func (m *Monitor) RecordRequest(responseTimeMs float64, failed bool) {
	m.requests.Add(1)
	if failed {
		m.errors.Add(1)
	}
	m.responseTimes.Record(responseTimeMs)
}

// RecordAuthFailure counts one authentication failure.
func (m *Monitor) RecordAuthFailure() {
	m.authFailures.Add(1)
}

// RecordRateLimitViolation counts one rate-limit rejection.
func (m *Monitor) RecordRateLimitViolation() {
	m.rateLimitViolations.Add(1)
}

// RecordDBQuery records a database query duration.
func (m *Monitor) RecordDBQuery(ms float64) {
	m.dbQueryTimes.Record(ms)
}

// RecordSearchQuery records a search query duration.
func (m *Monitor) RecordSearchQuery(ms float64) {
	m.queryTimes.Record(ms)
}

// ConnectionOpened increments the active connection gauge.
func (m *Monitor) ConnectionOpened() { m.activeConnections.Add(1) }

// ConnectionClosed decrements the active connection gauge.
func (m *Monitor) ConnectionClosed() { m.activeConnections.Add(-1) }

// SessionStarted increments the active session gauge.
func (m *Monitor) SessionStarted() { m.activeSessions.Add(1) }

// SessionEnded decrements the active session gauge.
func (m *Monitor) SessionEnded() { m.activeSessions.Add(-1) }

// SetSystemStats pushes host-level readings used by snapshots, alert
// rules and the health score.
func (m *Monitor) SetSystemStats(cpuPercent, memPercent float64, ioBytes uint64) {
	m.sysMu.Lock()
	defer m.sysMu.Unlock()
	m.cpuPercent = cpuPercent
	m.memPercent = memPercent
	m.ioBytes = ioBytes
}

// Requests returns the total request count.
func (m *Monitor) Requests() uint64 { return m.requests.Load() }

// Errors returns the total error count.
func (m *Monitor) Errors() uint64 { return m.errors.Load() }

// AuthFailures returns the total authentication failure count.
func (m *Monitor) AuthFailures() uint64 { return m.authFailures.Load() }

// RateLimitViolations returns the total rate-limit rejection count.
func (m *Monitor) RateLimitViolations() uint64 { return m.rateLimitViolations.Load() }

// ActiveConnections returns the current connection gauge.
func (m *Monitor) ActiveConnections() int64 { return m.activeConnections.Load() }

// ActiveSessions returns the current session gauge.
func (m *Monitor) ActiveSessions() int64 { return m.activeSessions.Load() }

// ResponseTimes exposes the request response-time tracker.
func (m *Monitor) ResponseTimes() *Tracker { return m.responseTimes }

// SearchQueryTimes exposes the search query duration tracker.
func (m *Monitor) SearchQueryTimes() *Tracker { return m.queryTimes }

// ErrorRate returns errors/requests as a fraction, 0 when no requests.
func (m *Monitor) ErrorRate() float64 {
	requests := m.requests.Load()
	if requests == 0 {
		return 0
	}
	return float64(m.errors.Load()) / float64(requests)
}

// Collect appends a snapshot of current metrics to the time series.
func (m *Monitor) Collect() Snapshot {
	m.sysMu.RLock()
	cpu, mem, io := m.cpuPercent, m.memPercent, m.ioBytes
	m.sysMu.RUnlock()

	snap := Snapshot{
		Timestamp:         m.now(),
		CPUPercent:        cpu,
		MemoryPercent:     mem,
		IOBytes:           io,
		ActiveConnections: m.activeConnections.Load(),
		Requests:          m.requests.Load(),
		Errors:            m.errors.Load(),
		ResponseP50:       m.responseTimes.Percentile(50),
		ResponseP95:       m.responseTimes.Percentile(95),
		ResponseP99:       m.responseTimes.Percentile(99),
	}

	m.seriesMu.Lock()
	m.series = append(m.series, snap)
	if len(m.series) > m.seriesSize {
		m.series = m.series[len(m.series)-m.seriesSize:]
	}
	m.seriesMu.Unlock()
	return snap
}

// Series returns a copy of the retained snapshots, oldest first.
func (m *Monitor) Series() []Snapshot {
	m.seriesMu.RLock()
	defer m.seriesMu.RUnlock()
	out := make([]Snapshot, len(m.series))
	copy(out, m.series)
	return out
}

// HealthScore summarises process health in [0,1]. Deductions are taken
// for CPU, memory, error rate and average response time crossing their
// warning and critical thresholds.
func (m *Monitor) HealthScore() float64 {
	m.sysMu.RLock()
	cpu, mem := m.cpuPercent, m.memPercent
	m.sysMu.RUnlock()

	score := 1.0
	switch {
	case cpu > 80:
		score -= 0.3
	case cpu > 60:
		score -= 0.1
	}
	switch {
	case mem > 85:
		score -= 0.3
	case mem > 70:
		score -= 0.1
	}
	switch errRate := m.ErrorRate(); {
	case errRate > 0.05:
		score -= 0.4
	case errRate > 0.01:
		score -= 0.2
	}
	switch avg := m.responseTimes.Average(); {
	case avg > 2000:
		score -= 0.2
	case avg > 1000:
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	return score
}

// Run drives the collection and alert-evaluation loops until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	collect := time.NewTicker(m.collectionInterval)
	defer collect.Stop()
	evaluate := time.NewTicker(alertEvaluationInterval)
	defer evaluate.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-collect.C:
			m.Collect()
		case <-evaluate.C:
			m.EvaluateRules()
		}
	}
}
