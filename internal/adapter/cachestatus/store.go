// Package cachestatus implements the job status port on top of the cache
// port. Backed by ristretto it gives bounded-lifetime in-process records;
// backed by NATS KV (or the tiered composite) it shares job status across
// engine instances.
package cachestatus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/formulab/desbank/internal/domain"
	"github.com/formulab/desbank/internal/port/cache"
	"github.com/formulab/desbank/internal/port/jobstatus"
)

const keyPrefix = "jobstatus:"

// Store persists jobstatus.Records as JSON values in a cache.
type Store struct {
	cache cache.Cache
	ttl   time.Duration
}

// New creates a cache-backed job status store. Records expire after ttl.
func New(c cache.Cache, ttl time.Duration) *Store {
	return &Store{cache: c, ttl: ttl}
}

// Put stores or replaces the record for its recommendation id.
func (s *Store) Put(ctx context.Context, rec *jobstatus.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}
	if err := s.cache.Set(ctx, keyPrefix+rec.RecommendationID, data, s.ttl); err != nil {
		return fmt.Errorf("store job status %s: %w", rec.RecommendationID, err)
	}
	return nil
}

// Get returns the record or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, recommendationID string) (*jobstatus.Record, error) {
	data, found, err := s.cache.Get(ctx, keyPrefix+recommendationID)
	if err != nil {
		return nil, fmt.Errorf("load job status %s: %w", recommendationID, err)
	}
	if !found {
		return nil, fmt.Errorf("job status %s: %w", recommendationID, domain.ErrNotFound)
	}

	var rec jobstatus.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job status %s: %w", recommendationID, err)
	}
	return &rec, nil
}

// Delete removes the record. Absent ids are not an error.
func (s *Store) Delete(ctx context.Context, recommendationID string) error {
	return s.cache.Delete(ctx, keyPrefix+recommendationID)
}
