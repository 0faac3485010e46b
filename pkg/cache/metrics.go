package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Eviction reasons used as label values.
const (
	reasonCapacity = "capacity"
	reasonExpired  = "expired"
)

var (
	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steam_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses tracks cache misses (absent or expired keys)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steam_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheEvictions tracks removed entries by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steam_cache_evictions_total",
			Help: "Total number of cache entries removed by capacity or expiry",
		},
		[]string{"reason"}, // "capacity", "expired"
	)

	// CacheEntries tracks the current number of entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "steam_cache_entries",
			Help: "Current number of entries in the cache",
		},
	)
)
