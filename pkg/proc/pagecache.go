package proc

import (
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
)

// DefaultCachePages is the number of pages a View keeps when no capacity is
// configured.
const DefaultCachePages = 1024

// PageCache is a fixed capacity LRU cache of remote pages keyed by their
// page aligned address. Get promotes the page to most recently used, Add
// evicts the least recently used page once capacity is exceeded.
// A PageCache with zero capacity stores nothing.
type PageCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU
}

// NewPageCache creates a cache holding at most capacity pages.
func NewPageCache(capacity int) *PageCache {
	c := &PageCache{}
	if capacity > 0 {
		// NewLRU only fails for non-positive sizes.
		c.lru, _ = simplelru.NewLRU(capacity, nil)
	}
	return c
}

// Get returns the page starting at addr, if cached.
func (c *PageCache) Get(addr uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru == nil {
		return nil, false
	}
	v, ok := c.lru.Get(addr)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Add inserts the page starting at addr, evicting the least recently used
// page if the cache is full.
func (c *PageCache) Add(addr uint64, page []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru == nil {
		return
	}
	c.lru.Add(addr, page)
}

// Contains reports whether the page starting at addr is cached without
// changing its recency.
func (c *PageCache) Contains(addr uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru != nil && c.lru.Contains(addr)
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Clear drops every cached page.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		c.lru.Purge()
	}
}
