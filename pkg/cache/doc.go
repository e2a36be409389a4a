// Package cache stores ISS responses in Redis.
//
// Catalog listings, history cursors and history pages are cached as JSON
// entries under a deterministic key built from the request path and its
// sorted query. Entries carry their own expiry and are written with a
// matching Redis TTL, so stale data disappears on its own.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.KeyFromURL(u, false)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from ISS, then
//		_ = manager.Set(ctx, key, cache.NewEntry(body, contentType, 10*time.Minute))
//	}
//
// # Metrics
//
//   - iss_cache_hits_total - Cache hits
//   - iss_cache_misses_total - Cache misses
//   - iss_cache_stored_bytes_total - Bytes written to Redis
//   - iss_cache_errors_total{operation} - Cache operation errors
package cache
