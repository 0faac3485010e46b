// Package cache provides the in-memory TTL cache that sits in front of the
// Steam Web API and Store API.
//
// Entries carry their own TTL and are never served once expired. When the
// cache is full, inserting a new key evicts the least recently used entry.
//
// # Basic Usage
//
//	c, err := cache.NewMemory(cache.Config{MaxSize: 1000})
//	if err != nil {
//		return err
//	}
//
//	key := cache.NewKey("player_count", "440").Digest()
//	if v, ok := c.Get(key); ok {
//		return v.(int), nil
//	}
//
//	count := fetch()
//	c.Set(key, count, 2*time.Minute)
//
// # Keys
//
// Key.String() is deterministic: positional arguments keep their order and
// keyword parameters are sorted by name. Key.Digest() is the SHA-256 of that
// string and is what callers store under.
//
// # Expiry
//
// Expired entries are purged lazily on Get and eagerly by EvictExpired. The
// cache owns no timers; the application calls EvictExpired on a schedule.
//
// # Metrics
//
//   - steam_cache_hits_total - Cache hits
//   - steam_cache_misses_total - Cache misses (absent or expired)
//   - steam_cache_evictions_total{reason} - Removals by "capacity" or "expired"
//   - steam_cache_entries - Current entry count
package cache
