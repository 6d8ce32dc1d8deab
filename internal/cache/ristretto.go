package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCache implements RecordCache in-process using ristretto. Used when no
// Redis URL is configured; entries are private to the process.
type MemoryCache struct {
	cache *ristretto.Cache[string, []byte]
}

// NewMemoryCache creates an in-process cache sized for metadata records.
func NewMemoryCache() (*MemoryCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 100_000,           // sized for ~10k live records
		MaxCost:     64 * 1024 * 1024,  // 64 MiB of marshalled records
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{cache: cache}, nil
}

// GetJSON retrieves and unmarshals a cached value into dest.
func (c *MemoryCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	data, found := c.cache.Get(key)
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value for %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals and stores a value with a TTL. Admission is asynchronous;
// a freshly set key may miss until ristretto's buffers drain.
func (c *MemoryCache) SetJSON(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	c.cache.SetWithTTL(key, data, int64(len(data)), ttl)
	return nil
}

// Wait blocks until pending writes are admitted. Tests use this to make
// Set visible before asserting on Get.
func (c *MemoryCache) Wait() {
	c.cache.Wait()
}

// Close releases the underlying cache.
func (c *MemoryCache) Close() {
	c.cache.Close()
}
