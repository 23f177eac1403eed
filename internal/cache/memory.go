package cache

import (
	"bytes"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ErrFull is returned by MemoryCache.Set when the entry bound is reached
var ErrFull = errors.New("memory cache full")

// MemoryCache keeps recent page bodies in process, bounded by entry count.
// Bodies are copied on Set so callers may reuse their buffers.
type MemoryCache struct {
	mu         sync.Mutex
	items      *gocache.Cache
	maxEntries int
}

// NewMemoryCache creates a memory cache swept every ttl. A non-positive maxEntries
// means no bound.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		items:      gocache.New(ttl, ttl),
		maxEntries: maxEntries,
	}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if val, found := c.items.Get(key); found {
		if b, ok := val.([]byte); ok {
			return b, true
		}
	}
	return nil, false
}

// Set stores value; ttl of zero uses the cache default. Replacing an existing key never
// counts against the bound.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.full(key) {
		return ErrFull
	}
	c.items.Set(key, bytes.Clone(value), ttl)
	return nil
}

// full reports whether storing a new key would exceed the bound. Caller holds mu.
func (c *MemoryCache) full(key string) bool {
	if c.maxEntries <= 0 {
		return false
	}
	if _, exists := c.items.Get(key); exists {
		return false
	}
	if c.items.ItemCount() < c.maxEntries {
		return false
	}
	c.items.DeleteExpired()
	return c.items.ItemCount() >= c.maxEntries
}

// Len returns the number of stored bodies, including expired ones not yet evicted
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}
