package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Cache stores raw registry response bodies
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Layer names the tier that served a cached page
type Layer string

const (
	LayerMemory Layer = "memory"
	LayerDisk   Layer = "disk"
)

// Lookup retrieves key from c and names the layer that held it
func Lookup(c Cache, key string) ([]byte, Layer, bool) {
	switch c := c.(type) {
	case *LayeredCache:
		return c.Lookup(key)
	case *DiskCache:
		val, ok := c.Get(key)
		return val, LayerDisk, ok
	default:
		val, ok := c.Get(key)
		return val, LayerMemory, ok
	}
}

// PageKey derives a cache key from the request URL and its form values.
// Form values are sorted so map iteration order never changes the key.
func PageKey(rawURL string, form map[string]string) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(form[k])
	}

	hash := sha256.Sum256([]byte(b.String()))
	return "rnpdno:v1:" + hex.EncodeToString(hash[:])
}

// Noop is a Cache that never stores anything
type Noop struct{}

func (Noop) Get(string) ([]byte, bool) {
	return nil, false
}

func (Noop) Set(string, []byte, time.Duration) error {
	return nil
}

func (Noop) Delete(string) error {
	return nil
}

func (Noop) Clear() error {
	return nil
}
