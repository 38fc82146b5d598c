// Package observability holds the Prometheus metrics of the note service.
//
// All metric methods are nil-safe so components can run without metrics in
// tests and tools.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "secondbrain"

// Metrics groups the counters and histograms exported by the service.
type Metrics struct {
	// PersistCalls counts store calls issued by sessions.
	// Labels: op (update_note, create_note, list_question, ...), status (success, error, not_found)
	PersistCalls *prometheus.CounterVec

	// PersistDuration measures store call latency.
	// Labels: op
	PersistDuration *prometheus.HistogramVec

	// DebounceCoalesced counts free-text saves replaced before they were sent.
	DebounceCoalesced prometheus.Counter

	// ActiveSessions tracks open note sessions.
	ActiveSessions prometheus.Gauge

	// MarksPruned counts orphaned inline marks removed by reconciliation.
	MarksPruned prometheus.Counter

	// HTTPRequests counts API requests.
	// Labels: route, method, status
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PersistCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "persist_calls_total",
			Help:      "Store calls issued by note sessions.",
		}, []string{"op", "status"}),
		PersistDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "persist_duration_seconds",
			Help:      "Latency of store calls issued by note sessions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		DebounceCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "debounce_coalesced_total",
			Help:      "Free-text saves superseded by a later edit.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Open note sessions.",
		}),
		MarksPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "marks_pruned_total",
			Help:      "Inline marks removed because no annotation row matched.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status.",
		}, []string{"route", "method", "status"}),
	}
}

// ObservePersist records one store call.
func (m *Metrics) ObservePersist(op, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PersistCalls.WithLabelValues(op, status).Inc()
	m.PersistDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) Coalesced() {
	if m == nil {
		return
	}
	m.DebounceCoalesced.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) Pruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MarksPruned.Add(float64(n))
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(route, method string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
