// Package cache caches MangaDex lookup responses in Redis.
//
// Cover and author records change rarely, and the same author or cover is
// referenced by many listing records, so the fetch client keeps their
// responses for as long as the server allows. Listing pages are never cached:
// a page is a moving window over the catalogue.
//
// Features:
//
// - TTL from Cache-Control max-age or Expires, no caching on no-store
// - ETag and Last-Modified conditional requests
// - Deterministic keys from request path and query
// - Prometheus metrics
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.KeyForURL(req.URL)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from MangaDex, then
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - mangadex_cache_hits_total{layer="redis"}
//   - mangadex_cache_misses_total
//   - mangadex_cache_errors_total{operation}
//   - mangadex_cache_not_modified_total
//   - mangadex_cache_conditional_requests_total
package cache
