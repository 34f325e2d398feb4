package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nerrad567/airrelay/internal/store"
)

// ErrInvalidSize is returned by New for a non-positive capacity.
var ErrInvalidSize = errors.New("cache: size must be positive")

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// Cache decorates a backend store with a fixed-capacity LRU.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The internal lock is never
//     held across a backend call.
type Cache struct {
	backend store.Store

	mu        sync.Mutex
	lru       *simplelru.LRU[string, string]
	seq       uint64
	pending   map[string]int
	contended map[string]bool
	stats     Stats

	metrics *cacheMetrics
}

var _ store.Store = (*Cache)(nil)

// New wraps backend with an LRU holding at most size entries.
func New(backend store.Store, size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	lru, err := simplelru.NewLRU[string, string](size, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	c := &Cache{
		backend:   backend,
		lru:       lru,
		pending:   make(map[string]int),
		contended: make(map[string]bool),
	}

	if o.registerer != nil {
		m, err := newCacheMetrics(o.registerer)
		if err != nil {
			return nil, err
		}
		c.metrics = m
	}
	return c, nil
}

// Get returns the cached value or reads through to the backend.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	if v, ok := c.lru.Get(key); ok {
		c.stats.Hits++
		if c.metrics != nil {
			c.metrics.hits.Inc()
		}
		c.mu.Unlock()
		return v, true, nil
	}
	c.stats.Misses++
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
	startSeq := c.seq
	c.mu.Unlock()

	v, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}

	c.mu.Lock()
	if c.seq == startSeq && c.pending[key] == 0 {
		c.addLocked(key, v)
	}
	c.mu.Unlock()

	return v, true, nil
}

// Put writes entries to the backend, then mirrors them into the cache.
// On failure every touched key is purged.
func (c *Cache) Put(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}

	c.begin(keys)
	err := c.backend.Put(ctx, entries)
	c.finish(keys, func(k string) (string, bool) {
		return entries[k], err == nil
	})
	return err
}

// Delete removes keys from the backend and purges them from the cache
// whether or not they were cached.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	c.begin(keys)
	err := c.backend.Delete(ctx, keys...)
	c.finish(keys, func(string) (string, bool) { return "", false })
	return err
}

// CompareAndSwap delegates to the backend. A successful swap caches the new
// value; any other outcome purges the key.
func (c *Cache) CompareAndSwap(ctx context.Context, key, old, newValue string) (bool, error) {
	keys := []string{key}

	c.begin(keys)
	swapped, err := c.backend.CompareAndSwap(ctx, key, old, newValue)
	c.finish(keys, func(string) (string, bool) {
		return newValue, err == nil && swapped
	})
	return swapped, err
}

// Clear drops every cached entry without touching the backend.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.seq++
	c.updateSizeLocked()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.lru.Len()
	return s
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}

func (c *Cache) begin(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	for _, k := range keys {
		c.pending[k]++
		if c.pending[k] > 1 {
			c.contended[k] = true
		}
	}
}

// finish ends a mutation. value reports what the cache should hold for k,
// or false to purge it.
func (c *Cache) finish(keys []string, value func(k string) (string, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	for _, k := range keys {
		v, keep := value(k)
		if keep && !c.contended[k] {
			c.addLocked(k, v)
		} else {
			c.lru.Remove(k)
		}

		c.pending[k]--
		if c.pending[k] <= 0 {
			delete(c.pending, k)
			delete(c.contended, k)
		}
	}
	c.updateSizeLocked()
}

func (c *Cache) addLocked(key, value string) {
	if evicted := c.lru.Add(key, value); evicted {
		c.stats.Evictions++
		if c.metrics != nil {
			c.metrics.evictions.Inc()
		}
	}
	c.updateSizeLocked()
}

func (c *Cache) updateSizeLocked() {
	if c.metrics != nil {
		c.metrics.size.Set(float64(c.lru.Len()))
	}
}
