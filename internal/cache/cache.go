// Package cache provides an in-process TTL cache for API read paths with
// prefix invalidation wired to scrape completions.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/plateiq/restaurant-intel/internal/metrics"
)

type entry struct {
	value    []byte
	deadline time.Time
}

// Cache is an LRU keyed by response name. Entries carry their own TTL so hot
// list endpoints can expire faster than detail lookups; the underlying LRU
// applies a ceiling TTL as a backstop.
type Cache struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// New builds a cache holding up to size entries. maxTTL caps every entry
// regardless of the TTL passed to Put.
func New(size int, maxTTL time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get returns the cached value when present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	e, ok := c.lru.Get(key)
	if !ok || c.now().After(e.deadline) {
		if ok {
			c.lru.Remove(key)
		}
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	metrics.ObserveCacheLookup(true)
	return e.value, true
}

// Put stores value under key for at most ttl.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	c.lru.Add(key, entry{value: value, deadline: c.now().Add(ttl)})
}

// InvalidatePrefix drops every entry whose key starts with prefix and
// returns the number removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Len reports the number of live entries.
func (c *Cache) Len() int { return c.lru.Len() }
