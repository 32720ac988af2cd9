package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics records read-through cache activity per cache name.
type CacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

// NewCacheMetrics registers the cache metrics on the provided registerer.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cache_hits_total",
		Help: "Reads served from a live cache entry.",
	}, []string{"cache"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cache_misses_total",
		Help: "Reads that invoked the producer.",
	}, []string{"cache"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cache_evictions_total",
		Help: "Entries evicted because the cache reached its size bound.",
	}, []string{"cache"})
	reg.MustRegister(hits, misses, evictions)
	return &CacheMetrics{
		hits:      hits,
		misses:    misses,
		evictions: evictions,
	}
}

// IncHit increments the hit counter for the named cache.
func (c *CacheMetrics) IncHit(cache string) {
	if c == nil || c.hits == nil {
		return
	}
	c.hits.WithLabelValues(normalizeLabel(cache)).Inc()
}

// IncMiss increments the miss counter for the named cache.
func (c *CacheMetrics) IncMiss(cache string) {
	if c == nil || c.misses == nil {
		return
	}
	c.misses.WithLabelValues(normalizeLabel(cache)).Inc()
}

// IncEviction increments the eviction counter for the named cache.
func (c *CacheMetrics) IncEviction(cache string) {
	if c == nil || c.evictions == nil {
		return
	}
	c.evictions.WithLabelValues(normalizeLabel(cache)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
