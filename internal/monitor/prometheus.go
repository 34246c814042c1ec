package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler exposing the monitor's metrics in
// Prometheus text format on a private registry, so the host process can
// mount it without touching the default registry.
func (m *Monitor) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	m.register(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// register binds the monitor's live values to collectors.
func (m *Monitor) register(registry *prometheus.Registry) {
	counter := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "openindex", Name: name, Help: help,
		}, fn)
	}
	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "openindex", Name: name, Help: help,
		}, fn)
	}

	registry.MustRegister(
		counter("requests_total", "Total requests observed.",
			func() float64 { return float64(m.requests.Load()) }),
		counter("errors_total", "Total failed requests.",
			func() float64 { return float64(m.errors.Load()) }),
		counter("auth_failures_total", "Total authentication failures.",
			func() float64 { return float64(m.authFailures.Load()) }),
		counter("rate_limit_violations_total", "Total rate limit rejections.",
			func() float64 { return float64(m.rateLimitViolations.Load()) }),
		gauge("active_connections", "Currently open connections.",
			func() float64 { return float64(m.activeConnections.Load()) }),
		gauge("active_sessions", "Currently active sessions.",
			func() float64 { return float64(m.activeSessions.Load()) }),
		gauge("response_time_ms_p50", "Request response time 50th percentile.",
			func() float64 { return m.responseTimes.Percentile(50) }),
		gauge("response_time_ms_p95", "Request response time 95th percentile.",
			func() float64 { return m.responseTimes.Percentile(95) }),
		gauge("response_time_ms_p99", "Request response time 99th percentile.",
			func() float64 { return m.responseTimes.Percentile(99) }),
		gauge("db_query_time_ms_avg", "Average database query time.",
			func() float64 { return m.dbQueryTimes.Average() }),
		gauge("search_query_time_ms_avg", "Average search query time.",
			func() float64 { return m.queryTimes.Average() }),
		gauge("health_score", "Composite health score in [0,1].",
			func() float64 { return m.HealthScore() }),
	)
}
