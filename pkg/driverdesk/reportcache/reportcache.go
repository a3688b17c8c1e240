// Package reportcache provides a small bounded cache for report lookups.
// When the cache is full, the oldest-inserted entry is evicted; overwriting
// an existing key keeps its position in the eviction order.
package reportcache

import "sync"

// Cache is a bounded insertion-order cache. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	limit   int
	entries map[K]V
	order   []K
}

// New creates a cache holding at most limit entries. limit must be positive.
func New[K comparable, V any](limit int) *Cache[K, V] {
	if limit <= 0 {
		limit = 1
	}
	return &Cache[K, V]{
		limit:   limit,
		entries: make(map[K]V, limit),
	}
}

// Get returns the cached value for key, if present.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores value under key, evicting the oldest insertion when full.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = value
		return
	}
	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = value
	c.order = append(c.order, key)
}

// Delete removes key from the cache if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
