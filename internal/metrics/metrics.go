package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process counters. A nil *Metrics is a valid no-op,
// so tests and minimal wirings can skip registration entirely.
type Metrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	storeFallbacks *prometheus.CounterVec
	storiesSynced  prometheus.Counter
}

// New registers the storysync counters on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storysync_cache_hits_total",
			Help: "HTTP responses served from a named cache.",
		}, []string{"cache"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storysync_cache_misses_total",
			Help: "HTTP cache lookups that found no entry.",
		}, []string{"cache"}),
		cacheEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storysync_cache_evictions_total",
			Help: "Entries evicted from a named cache by its retention bounds.",
		}, []string{"cache"}),
		storeFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storysync_store_fallbacks_total",
			Help: "Reads served from the local store after a gateway failure.",
		}, []string{"op"}),
		storiesSynced: factory.NewCounter(prometheus.CounterOpts{
			Name: "storysync_stories_synced_total",
			Help: "Stories written through to the local store from the API.",
		}),
	}
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheEviction(cache string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(cache).Inc()
}

func (m *Metrics) StoreFallback(op string) {
	if m == nil {
		return
	}
	m.storeFallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) StoriesSynced(count int) {
	if m == nil {
		return
	}
	m.storiesSynced.Add(float64(count))
}
