package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for one cache engine instance.
// Each engine owns its own Collector and registry so tests can construct
// isolated instances without duplicate-registration panics.
type Collector struct {
	registry *prometheus.Registry

	// Read path
	Hits   *prometheus.CounterVec
	Misses prometheus.Counter

	// Fetch path
	Fetches        *prometheus.CounterVec
	CoalescedWaits prometheus.Counter
	StaleFallbacks prometheus.Counter

	// Maintenance
	Evictions  *prometheus.CounterVec
	TierErrors *prometheus.CounterVec
}

// NewCollector creates a metrics collector with the given namespace,
// registered against its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	hits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits, labeled by the tier that served them",
		},
		[]string{"tier"},
	)

	misses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Reads that found no fresh entry in any tier",
		},
	)

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetches_total",
			Help:      "Upstream fetch executions by outcome",
		},
		[]string{"status"},
	)

	coalescedWaits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_coalesced_waits_total",
			Help:      "Callers that waited on another caller's in-flight fetch",
		},
	)

	staleFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_fallbacks_total",
			Help:      "Fetch failures served from an expired cached value",
		},
	)

	evictions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed by sweeps or capacity pressure",
		},
		[]string{"tier"},
	)

	tierErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_tier_errors_total",
			Help:      "Swallowed tier I/O failures by tier and operation",
		},
		[]string{"tier", "op"},
	)

	registry.MustRegister(hits, misses, fetches, coalescedWaits, staleFallbacks, evictions, tierErrors)

	return &Collector{
		registry:       registry,
		Hits:           hits,
		Misses:         misses,
		Fetches:        fetches,
		CoalescedWaits: coalescedWaits,
		StaleFallbacks: staleFallbacks,
		Evictions:      evictions,
		TierErrors:     tierErrors,
	}
}

// Registry exposes the collector's registry for scraping endpoints.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// The Record helpers are nil-safe so components can run without metrics wired.

// RecordHit records a read served by the named tier.
func (c *Collector) RecordHit(tier string) {
	if c == nil {
		return
	}
	c.Hits.WithLabelValues(tier).Inc()
}

// RecordMiss records a read that no tier could serve fresh.
func (c *Collector) RecordMiss() {
	if c == nil {
		return
	}
	c.Misses.Inc()
}

// RecordFetch records an upstream fetch outcome ("success" or "failure").
func (c *Collector) RecordFetch(status string) {
	if c == nil {
		return
	}
	c.Fetches.WithLabelValues(status).Inc()
}

// RecordCoalescedWait records a caller that shared another caller's flight.
func (c *Collector) RecordCoalescedWait() {
	if c == nil {
		return
	}
	c.CoalescedWaits.Inc()
}

// RecordStaleFallback records a fetch failure answered with stale data.
func (c *Collector) RecordStaleFallback() {
	if c == nil {
		return
	}
	c.StaleFallbacks.Inc()
}

// RecordEvictions records entries removed from the named tier.
func (c *Collector) RecordEvictions(tier string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Evictions.WithLabelValues(tier).Add(float64(n))
}

// RecordTierError records a swallowed tier failure.
func (c *Collector) RecordTierError(tier, op string) {
	if c == nil {
		return
	}
	c.TierErrors.WithLabelValues(tier, op).Inc()
}
