// Package telemetry holds the prometheus instrumentation of the cache engine.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "entitycache"

// Metrics groups the collectors used across packages.
type Metrics struct {
	dispatches   *prometheus.CounterVec
	dispatchTime *prometheus.HistogramVec
	challenges   *prometheus.CounterVec
	speculations *prometheus.CounterVec
	searches     *prometheus.CounterVec
	cacheOps     *prometheus.CounterVec
}

// New registers the collectors on reg. It returns nil when reg is nil.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return nil
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &Metrics{
		dispatches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatched requests by action and outcome (ok or error kind)",
		}, []string{"action", "outcome"}),
		dispatchTime: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from issue to settlement of dispatched requests, challenges included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		challenges: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_total",
			Help:      "Challenge-response rounds by outcome",
		}, []string{"outcome"}),
		speculations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speculative_delta_total",
			Help:      "Optimistic deltas by mutation and lifecycle event",
		}, []string{"mutation", "event"}),
		searches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_lookup_total",
			Help:      "Search cache lookups by entity kind and result",
		}, []string{"kind", "result"}),
		cacheOps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_total",
			Help:      "Response cache operations",
		}, []string{"op"}),
	}
}

// ObserveDispatch records a settled request.
func (m *Metrics) ObserveDispatch(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(action, outcome).Inc()
	m.dispatchTime.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveChallenge records the outcome of a challenge round.
func (m *Metrics) ObserveChallenge(outcome string) {
	if m == nil {
		return
	}
	m.challenges.WithLabelValues(outcome).Inc()
}

// ObserveSpeculation records a speculative delta lifecycle event.
func (m *Metrics) ObserveSpeculation(mutation, event string) {
	if m == nil {
		return
	}
	m.speculations.WithLabelValues(mutation, event).Inc()
}

// ObserveSearch records a search cache lookup.
func (m *Metrics) ObserveSearch(kind, result string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(kind, result).Inc()
}

// ObserveResponseCache records a response cache operation.
func (m *Metrics) ObserveResponseCache(op string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(op).Inc()
}
