package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Bounds for the expired-entry sweep. The sweep tracks the default TTL so
// short-lived embedding entries do not pile up between runs.
const (
	minSweepInterval = 30 * time.Second
	maxSweepInterval = 10 * time.Minute
)

// MemoryCache is the in-process layer, backed by an expiring map. Get never
// serves an expired entry; the background sweep only reclaims memory.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a memory cache that sweeps expired entries at half
// the default TTL, clamped to [30s, 10m].
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	sweep := defaultTTL / 2
	if sweep < minSweepInterval {
		sweep = minSweepInterval
	}
	if sweep > maxSweepInterval {
		sweep = maxSweepInterval
	}
	return &MemoryCache{
		cache: gocache.New(defaultTTL, sweep),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	return val.([]byte), true
}

// Set stores a value; a zero TTL uses the cache default
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

// Clear removes all values from the cache
func (c *MemoryCache) Clear() error {
	c.cache.Flush()
	return nil
}
