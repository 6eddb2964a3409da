package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buddy",
			Name:      "cache_hits_total",
			Help:      "Cache lookups answered from memory.",
		},
		[]string{"cache"},
	)
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buddy",
			Name:      "cache_misses_total",
			Help:      "Cache lookups that had to go to the source.",
		},
		[]string{"cache"},
	)
	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buddy",
			Name:      "cache_evictions_total",
			Help:      "Entries dropped for capacity or removed explicitly.",
		},
		[]string{"cache"},
	)
)

// LRU is a bounded, concurrency-safe least-recently-used cache.
type LRU[K comparable, V any] struct {
	name string
	c    *lru.Cache[K, V]
}

// NewLRU creates a cache holding at most size entries. name labels the
// cache's metrics. onEvict, when non-nil, runs for entries dropped for
// capacity or removed explicitly.
func NewLRU[K comparable, V any](name string, size int, onEvict func(K, V)) (*LRU[K, V], error) {
	if size <= 0 {
		size = 1
	}
	evictions := cacheEvictions.WithLabelValues(name)
	c, err := lru.NewWithEvict[K, V](size, func(k K, v V) {
		evictions.Inc()
		if onEvict != nil {
			onEvict(k, v)
		}
	})
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{name: name, c: c}, nil
}

// Name is the metrics label.
func (l *LRU[K, V]) Name() string { return l.name }

// Get returns the value for k and marks it recently used.
func (l *LRU[K, V]) Get(k K) (V, bool) {
	v, ok := l.c.Get(k)
	if ok {
		cacheHits.WithLabelValues(l.name).Inc()
	} else {
		cacheMisses.WithLabelValues(l.name).Inc()
	}
	return v, ok
}

// Peek returns the value for k without touching recency or metrics.
func (l *LRU[K, V]) Peek(k K) (V, bool) { return l.c.Peek(k) }

// Add stores v under k and reports whether an older entry was evicted.
func (l *LRU[K, V]) Add(k K, v V) (evicted bool) { return l.c.Add(k, v) }

// Contains checks for k without touching recency or metrics.
func (l *LRU[K, V]) Contains(k K) bool { return l.c.Contains(k) }

func (l *LRU[K, V]) Remove(k K) bool { return l.c.Remove(k) }

func (l *LRU[K, V]) Keys() []K { return l.c.Keys() }

// Len is the number of entries held.
func (l *LRU[K, V]) Len() int { return l.c.Len() }

// Purge drops every entry. The eviction callback runs for each of them.
func (l *LRU[K, V]) Purge() { l.c.Purge() }
