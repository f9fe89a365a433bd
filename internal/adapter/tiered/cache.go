// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/formulab/desbank/internal/port/cache"
)

// Cache layers an in-process L1 over a shared L2. Reads try L1 first
// and backfill it on an L2 hit, so repeated status polls for the same
// job stay in-process.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New combines l1 and l2. Backfilled L1 entries live for l1Expire,
// independent of the ttl they were originally stored with.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get returns the value for key from the nearest tier that has it.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes to L2 first so a partial failure cannot leave L1 serving a
// value the shared tier never saw.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, key, value, ttl)
}

// Delete removes key from both tiers, attempting L2 even when the L1
// delete fails.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(c.l1.Delete(ctx, key), c.l2.Delete(ctx, key))
}
