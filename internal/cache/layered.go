package cache

import (
	"errors"
	"time"

	"github.com/ppiankov/rnpdno/internal/model"
)

// LayeredCache serves page bodies from memory, then disk. Disk hits are promoted.
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache
}

// NewLayeredCache builds the memory-over-disk page cache described by cfg
func NewLayeredCache(cfg model.CacheConfig) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(cfg.MemoryTTL, cfg.MemoryEntries),
		disk:   NewDiskCache(cfg.Dir, cfg.DiskTTL),
	}
}

// Lookup retrieves key and names the layer that held it
func (c *LayeredCache) Lookup(key string) ([]byte, Layer, bool) {
	if val, found := c.memory.Get(key); found {
		return val, LayerMemory, true
	}

	if val, found := c.disk.Get(key); found {
		_ = c.memory.Set(key, val, 0)
		return val, LayerDisk, true
	}

	return nil, "", false
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	val, _, found := c.Lookup(key)
	return val, found
}

// Set stores value on disk for ttl and in memory for the memory TTL. A full memory
// layer is not an error.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, 0); err != nil && !errors.Is(err, ErrFull) {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

// Clear empties both layers
func (c *LayeredCache) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}
