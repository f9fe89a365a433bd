// Package natskv implements the cache port on a NATS JetStream KV
// bucket, the shared L2 tier that lets engine instances observe each
// other's job status records.
package natskv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache adapts a JetStream KeyValue bucket to the cache port. Entry
// lifetime comes from the bucket's TTL; per-call ttl values are ignored.
type Cache struct {
	kv jetstream.KeyValue
}

// New wraps an existing KV bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// encodeKey maps cache keys onto the KV key alphabet. JetStream rejects
// ':' and similar separators that the job status store uses.
func encodeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

// Get returns the stored value for key, reporting whether it exists.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores value under key.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, encodeKey(key), value)
	return err
}

// Delete removes key; deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
