// Package ristretto implements the cache port using dgraph-io/ristretto
// as the in-process L1 tier.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	// avgEntryBytes sizes the admission counters. Job status records are
	// small JSON documents, a few hundred bytes each.
	avgEntryBytes = 256
	bufferItems   = 64
)

// Cache is an in-process byte cache with cost-based eviction. Values are
// charged by their length against maxCostBytes.
type Cache struct {
	inner *ristretto.Cache[string, []byte]
}

// New creates a Cache bounded to maxCostBytes of stored values.
func New(maxCostBytes int64) (*Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / avgEntryBytes * 10,
		MaxCost:     maxCostBytes,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached value for key, reporting whether it was present.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.inner.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value under key for ttl. Admission is asynchronous; callers
// needing read-your-write visibility should Wait first.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.inner.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.inner.Del(key)
	return nil
}

// Wait blocks until buffered writes have been applied.
func (c *Cache) Wait() {
	c.inner.Wait()
}

// Close releases the cache's resources.
func (c *Cache) Close() {
	c.inner.Close()
}
