// Package cache holds import results between requests, keyed by an opaque
// session token. Entries carry their own creation time; a Janitor evicts
// those older than twice the sweep interval.
package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a cached value and its TTL metadata.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
}

// Cache is a process-wide token → value map. It is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
	now     func() time.Time
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]Entry[V]),
		now:     time.Now,
	}
}

// Put stores v under a fresh token and returns the token.
func (c *Cache[V]) Put(v V) string {
	token := uuid.NewString()
	c.mu.Lock()
	c.entries[token] = Entry[V]{Value: v, CreatedAt: c.now()}
	c.mu.Unlock()
	return token
}

// Get returns the value stored under token.
func (c *Cache[V]) Get(token string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()
	return e.Value, ok
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes entries created more than maxAge before now and returns how
// many were evicted.
func (c *Cache[V]) Sweep(now time.Time, maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for token, e := range c.entries {
		if now.Sub(e.CreatedAt) > maxAge {
			delete(c.entries, token)
			evicted++
		}
	}
	return evicted
}
