package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("expected miss on empty cache")
	}

	if err := c.Set("k", []byte("value"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found := c.Get("k")
	if !found || !bytes.Equal(got, []byte("value")) {
		t.Errorf("expected hit with stored value, got %q found=%v", got, found)
	}

	if err := c.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	if err := c.Set("short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected entry to expire")
	}
}

func TestMemoryCache_DefaultTTL(t *testing.T) {
	// A zero per-entry TTL inherits the cache default, even one far below
	// the minimum sweep interval
	c := NewMemoryCache(10 * time.Millisecond)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("k"); found {
		t.Error("expected entry to expire at the default TTL")
	}
}

func TestDiskCache(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("expected miss on empty cache")
	}

	if err := c.Set("k", []byte("value"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found := c.Get("k")
	if !found || !bytes.Equal(got, []byte("value")) {
		t.Errorf("expected hit with stored value, got %q found=%v", got, found)
	}

	if err := c.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("expected miss after delete")
	}

	// Deleting a missing key is not an error
	if err := c.Delete("never-existed"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected entry to expire on read")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Minute)

	if err := c.Set("k", []byte("value"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Drop the memory layer; the disk copy must still serve and re-warm it
	if err := c.memory.Clear(); err != nil {
		t.Fatalf("clear memory: %v", err)
	}

	got, found := c.Get("k")
	if !found || !bytes.Equal(got, []byte("value")) {
		t.Fatalf("expected disk hit, got %q found=%v", got, found)
	}

	if _, found := c.memory.Get("k"); !found {
		t.Error("expected disk hit to be promoted to memory")
	}
}

func TestLayeredCache_NoDiskLayer(t *testing.T) {
	c := NewLayeredCache(time.Minute, "", time.Minute)

	if err := c.Set("k", []byte("value"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, found := c.Get("k"); !found {
		t.Error("expected memory hit")
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("expected miss after clear")
	}
}

func TestEmbeddingKey(t *testing.T) {
	a := EmbeddingKey("model-a", "some text")
	b := EmbeddingKey("model-b", "some text")
	if a == b {
		t.Error("different models must produce different keys")
	}
	if a != EmbeddingKey("model-a", "some text") {
		t.Error("key derivation must be deterministic")
	}

	// The delimiter keeps (model, text) splits unambiguous
	if EmbeddingKey("ab", "c") == EmbeddingKey("a", "bc") {
		t.Error("model/text boundary must be part of the key")
	}
}
