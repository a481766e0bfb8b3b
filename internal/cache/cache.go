package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache defines the interface for caching operations
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	Clear()
}

// TTLCache implements Cache with time-to-live support, backed by go-cache
type TTLCache struct {
	data *gocache.Cache
}

// New creates a new TTL cache; expired entries are swept at twice the
// default TTL
func New(defaultTTL time.Duration) *TTLCache {
	return &TTLCache{
		data: gocache.New(defaultTTL, defaultTTL*2),
	}
}

// Get retrieves a value from the cache
func (c *TTLCache) Get(key string) (any, bool) {
	return c.data.Get(key)
}

// Set stores a value with the specified TTL
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	c.data.Set(key, value, ttl)
}

// Delete removes a value
func (c *TTLCache) Delete(key string) {
	c.data.Delete(key)
}

// Clear removes all values
func (c *TTLCache) Clear() {
	c.data.Flush()
}
