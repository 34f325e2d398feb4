// Package cache puts a bounded LRU in front of a store.Store.
//
// Reads are served from memory when possible and fall through to the
// backend otherwise. Writes go to the backend first and reach the cache only
// after they succeed. Deletes always purge. Absence is never cached.
//
// Under concurrent use the cache must never hold a value the backend does
// not. Two counters make this hold without a lock across backend calls:
//
//   - seq is bumped when any mutation starts and again when it finishes.
//     A read-through result is kept only if seq did not move while the
//     backend read was in flight.
//   - pending counts in-flight mutations per key. A finished mutation fills
//     the cache only if it was the sole mutation of its key for its whole
//     duration; otherwise the key is purged and the next read reloads it.
//
// Usage:
//
//	kv, err := cache.New(backend, cfg.Cache.Size, cache.WithMetrics(prometheus.DefaultRegisterer))
//	if err != nil {
//	    return err
//	}
//	dir := directory.New(kv)
//
// Clear drops every entry and is safe at any time; the next reads reload
// from the backend.
package cache
