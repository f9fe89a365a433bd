// Package cache defines the byte-level key-value port that job status
// records are stored behind.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys. Implementations may
// evict at any time; callers treat a miss as an absent record, never an
// error.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. Implementations with
	// bucket-level expiry may ignore ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Absent keys are not an error.
	Delete(ctx context.Context, key string) error
}
