// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	Compilations        *prometheus.CounterVec
	ValidationFailures  *prometheus.CounterVec
	Submissions         *prometheus.CounterVec
	SearchSuperseded    *prometheus.CounterVec
	BackendDuration     *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
	OpenSessions        prometheus.GaugeFunc

	registry *prometheus.Registry
}

// NewMetrics creates all metrics on a private registry.
// openSessions may be nil.
func NewMetrics(openSessions func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	if openSessions == nil {
		openSessions = func() float64 { return 0 }
	}

	m := &Metrics{
		Compilations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesmith_compilations_total",
			Help: "Rule payload compilations by result",
		}, []string{"result"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesmith_validation_failures_total",
			Help: "Validation failures by focus tab",
		}, []string{"tab"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesmith_submissions_total",
			Help: "Rule submissions by outcome",
		}, []string{"outcome"}),
		SearchSuperseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesmith_search_superseded_total",
			Help: "Lookups discarded because a newer lookup replaced them",
		}, []string{"kind"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rulesmith_backend_request_duration_seconds",
			Help:    "TPA backend request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation", "status"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rulesmith_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		OpenSessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rulesmith_designer_sessions_open",
			Help: "Open designer sessions",
		}, openSessions),
		registry: reg,
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Compilations,
		m.ValidationFailures,
		m.Submissions,
		m.SearchSuperseded,
		m.BackendDuration,
		m.CircuitBreakerState,
		m.OpenSessions,
	)

	return m
}

// ObserveBackend records one backend call.
func (m *Metrics) ObserveBackend(operation, status string, d time.Duration) {
	m.BackendDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

// SetBreakerState records a breaker transition.
func (m *Metrics) SetBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
