// Package metrics defines the Prometheus collectors for the marker client:
// cache hit/miss/stale counts and remote store request counts and latency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "change_observer"

// Cache results passed to CacheResult.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultStale = "stale"
)

// Metrics holds every collector, registered against one registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheResults    *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "reads_total",
			Help:      "Cache reads by key kind and result (hit, miss, stale)",
		}, []string{"kind", "result"}),

		invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache invalidations and removals by key kind",
		}, []string{"kind", "op"}),

		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Requests sent to the remote marker store",
		}, []string{"method", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "request_duration_seconds",
			Help:      "Remote marker store latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
	}
}

// CacheResult counts one cache read.
func (m *Metrics) CacheResult(kind, result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(kind, result).Inc()
}

// CacheInvalidated counts an invalidation (op "invalidate") or removal (op "remove").
func (m *Metrics) CacheInvalidated(kind, op string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(kind, op).Inc()
}

// ObserveRequest records one remote request. status 0 means no response was received.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the collectors of g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
