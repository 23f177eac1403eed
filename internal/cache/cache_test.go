package cache

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ppiankov/rnpdno/internal/model"
)

func TestPageKey_StableAcrossFormOrder(t *testing.T) {
	a := PageKey("https://registry.example/search", map[string]string{"id_estado": "1", "pagina": "2"})
	b := PageKey("https://registry.example/search", map[string]string{"pagina": "2", "id_estado": "1"})
	if a != b {
		t.Errorf("expected equal keys, got %s and %s", a, b)
	}

	c := PageKey("https://registry.example/search", map[string]string{"id_estado": "1", "pagina": "3"})
	if a == c {
		t.Error("different cursors must produce different keys")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0)
	body := []byte("v")
	if err := c.Set("k", body, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body[0] = 'x'
	if got, ok := c.Get("k"); !ok || string(got) != "v" {
		t.Errorf("expected stored copy v, got %q %v", got, ok)
	}
	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCache_Bound(t *testing.T) {
	c := NewMemoryCache(time.Minute, 2)
	for _, k := range []string{"a", "b"} {
		if err := c.Set(k, []byte(k), 0); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}

	if err := c.Set("c", []byte("c"), 0); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	// Replacing an existing key is always allowed
	if err := c.Set("a", []byte("a2"), 0); err != nil {
		t.Errorf("replace failed: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}

	// Expired entries make room
	if err := c.Set("b", []byte("b"), time.Nanosecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := c.Set("c", []byte("c"), 0); err != nil {
		t.Errorf("expected room after expiry, got %v", err)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set("page", []byte(`{"records":[]}`), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, ok := c.Get("page"); !ok || string(got) != `{"records":[]}` {
		t.Fatalf("expected hit, got %q %v", got, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get("page"); ok {
		t.Error("expected expired entry to miss")
	}
	if _, err := os.Stat(c.path("page")); !os.IsNotExist(err) {
		t.Errorf("expected expired file removed, stat err = %v", err)
	}
}

func TestDiskCache_DeleteMissing(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Delete("nope"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestLayeredCache_PromotesDiskHit(t *testing.T) {
	c := NewLayeredCache(model.CacheConfig{
		Dir:           t.TempDir(),
		MemoryTTL:     time.Minute,
		MemoryEntries: 8,
		DiskTTL:       time.Hour,
	})
	if err := c.disk.Set("k", []byte("from-disk"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, layer, ok := Lookup(c, "k")
	if !ok || string(got) != "from-disk" || layer != LayerDisk {
		t.Fatalf("expected disk hit, got %q %q %v", got, layer, ok)
	}
	if _, layer, ok := Lookup(c, "k"); !ok || layer != LayerMemory {
		t.Errorf("expected promotion to memory, got %q %v", layer, ok)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after clear")
	}
}

func TestLayeredCache_FullMemoryStillStoresOnDisk(t *testing.T) {
	c := NewLayeredCache(model.CacheConfig{
		Dir:           t.TempDir(),
		MemoryTTL:     time.Minute,
		MemoryEntries: 1,
		DiskTTL:       time.Hour,
	})

	if err := c.Set("a", []byte("a"), 0); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := c.Set("b", []byte("b"), 0); err != nil {
		t.Fatalf("set b with full memory failed: %v", err)
	}
	if _, layer, ok := Lookup(c, "b"); !ok || layer != LayerDisk {
		t.Errorf("expected b served from disk, got %q %v", layer, ok)
	}
}

func TestLookup_PlainCaches(t *testing.T) {
	mem := NewMemoryCache(time.Minute, 0)
	_ = mem.Set("k", []byte("v"), 0)
	if _, layer, ok := Lookup(mem, "k"); !ok || layer != LayerMemory {
		t.Errorf("expected memory hit, got %q %v", layer, ok)
	}

	if _, _, ok := Lookup(Noop{}, "k"); ok {
		t.Error("Noop should never hit")
	}
}
