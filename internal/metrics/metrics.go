// Package metrics exposes Prometheus instruments for dispatch and cache outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the broker's instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	sourceRequests *prometheus.CounterVec
	sourceLatency  *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	queries        *prometheus.CounterVec
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shirabe_source_requests_total",
			Help: "Source dispatch attempts by outcome.",
		}, []string{"source", "outcome"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shirabe_source_latency_seconds",
			Help:    "Source reply latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 20},
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shirabe_cache_lookups_total",
			Help: "Cache lookups by result.",
		}, []string{"result"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shirabe_queries_total",
			Help: "Submitted queries by classification.",
		}, []string{"classification"}),
	}
	m.registry.MustRegister(m.sourceRequests, m.sourceLatency, m.cacheLookups, m.queries)
	return m
}

// ObserveSource records one source outcome and its latency.
func (m *Metrics) ObserveSource(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sourceRequests.WithLabelValues(source, outcome).Inc()
	m.sourceLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveCache records a cache lookup result: hit, miss or error.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveQuery records a submitted query.
func (m *Metrics) ObserveQuery(classification string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(classification).Inc()
}

// Gatherer returns the registry for inspection.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
