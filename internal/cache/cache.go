// Package cache provides the process-wide response cache used by the API
// client. There is no TTL expiry: entries live until an event-driven
// invalidation hits their key prefix, or until the whole cache is cleared
// on login.
package cache

import (
	"strings"
	"sync"
)

// Cache is a key-value store with prefix-based invalidation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]interface{})}
}

// Get returns the cached value for key and whether it was present.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores a value under key.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// InvalidatePrefix drops every entry whose key starts with prefix and
// returns how many entries were removed. A read immediately after a
// matching invalidation misses and must go to the network.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry. Called on login so a new session never observes
// the previous session's data.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]interface{})
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
