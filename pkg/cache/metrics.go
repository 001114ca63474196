package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mangadex_cache_hits_total",
		Help: "Total number of MangaDex response cache hits",
	}, []string{"layer"}) // "redis"

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_cache_misses_total",
		Help: "Total number of MangaDex response cache misses",
	})

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mangadex_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"}) // "get", "set", "delete"

	// NotModifiedResponses tracks 304 responses served from cache.
	NotModifiedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_cache_not_modified_total",
		Help: "Total number of 304 Not Modified responses answered from cache",
	})

	// ConditionalRequestsSent tracks requests sent with a validator.
	ConditionalRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_cache_conditional_requests_total",
		Help: "Total number of conditional requests sent",
	})
)
