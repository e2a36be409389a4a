package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iss_cache_hits_total",
			Help: "Total number of ISS cache hits",
		},
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iss_cache_misses_total",
			Help: "Total number of ISS cache misses",
		},
	)

	// CacheStoredBytes tracks bytes written to Redis.
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "iss_cache_stored_bytes_total",
			Help: "Total bytes of ISS responses written to the cache",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iss_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
