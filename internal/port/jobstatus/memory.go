package jobstatus

import (
	"context"
	"fmt"
	"sync"

	"github.com/formulab/desbank/internal/domain"
)

// MemoryStore is the default in-process Store. Records are lost on
// restart; deployments needing durability or sharing wire a cache-backed
// implementation instead.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-process job status store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Put stores or replaces the record for its recommendation id.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.RecommendationID] = *rec
	return nil
}

// Get returns a copy of the record or domain.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, recommendationID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recommendationID]
	if !ok {
		return nil, fmt.Errorf("job status %s: %w", recommendationID, domain.ErrNotFound)
	}
	return &rec, nil
}

// Delete removes the record if present.
func (s *MemoryStore) Delete(_ context.Context, recommendationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recommendationID)
	return nil
}
