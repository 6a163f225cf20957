// Package observability provides Prometheus counters and in-process access
// statistics for the data-access core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search outcomes.
const (
	SearchExecuted   = "executed"
	SearchSuperseded = "superseded"
	SearchGated      = "gated"
	SearchFailed     = "failed"
)

// Metrics holds the core's counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	resolutions      *prometheus.CounterVec
	fallbackFailures *prometheus.CounterVec
	materializations *prometheus.CounterVec
	engineReinits    prometheus.Counter
	searches         *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
}

// NewMetrics registers the core's metrics on reg. Pass
// prometheus.NewRegistry() in tests to keep registrations isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schooldata_resolutions_total",
			Help: "Resolved logical requests by operation and backend",
		}, []string{"operation", "source"}),
		fallbackFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schooldata_fallback_failures_total",
			Help: "Requests where both backends failed, by operation",
		}, []string{"operation"}),
		materializations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schooldata_materializations_total",
			Help: "Working tables built, by kind",
		}, []string{"kind"}),
		engineReinits: f.NewCounter(prometheus.CounterOpts{
			Name: "schooldata_engine_reinitializations_total",
			Help: "Embedded engine reinitializations after a lost connection",
		}),
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schooldata_searches_total",
			Help: "Directory searches by outcome",
		}, []string{"outcome"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schooldata_engine_statement_duration_seconds",
			Help:    "Embedded engine statement duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"kind"}),
	}
}

// ObserveResolution records a successful resolution.
func (m *Metrics) ObserveResolution(operation, source string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(operation, source).Inc()
}

// ObserveFallbackFailure records a request both backends failed.
func (m *Metrics) ObserveFallbackFailure(operation string) {
	if m == nil {
		return
	}
	m.fallbackFailures.WithLabelValues(operation).Inc()
}

// ObserveMaterialization records a working-table build.
func (m *Metrics) ObserveMaterialization(kind string) {
	if m == nil {
		return
	}
	m.materializations.WithLabelValues(kind).Inc()
}

// ObserveReinitialization records an engine reinitialization.
func (m *Metrics) ObserveReinitialization() {
	if m == nil {
		return
	}
	m.engineReinits.Inc()
}

// ObserveSearch records a search outcome.
func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

// ObserveStatement records the duration of one engine statement.
func (m *Metrics) ObserveStatement(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(kind).Observe(seconds)
}
