// Package jsonfile implements the database ports over plain JSON files.
// It is the interchange format for bulk replay: a foreign instance's
// exported store directory can be opened read-only and drained into the
// primary store. It also serves as a dependency-free backend for local
// development.
//
// Layout: <dir>/recommendations.json holds a map of recommendation id to
// record; <dir>/insights.json holds a list of insights.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/formulab/desbank/internal/domain"
	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
)

const (
	recommendationsFile = "recommendations.json"
	insightsFile        = "insights.json"
)

// Store implements database.RecommendationStore and database.InsightStore
// over a directory of JSON files. Writes are atomic (write temp, rename).
type Store struct {
	dir string

	mu       sync.RWMutex
	recs     map[string]*recommendation.Recommendation
	insights []insight.Insight
}

// Open loads (or initializes) a JSON file store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{
		dir:  dir,
		recs: map[string]*recommendation.Recommendation{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.dir, recommendationsFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.recs); err != nil {
			return fmt.Errorf("parse %s: %w", recommendationsFile, err)
		}
		for _, rec := range s.recs {
			upgrade(rec)
		}
	case os.IsNotExist(err):
		// Fresh store.
	default:
		return fmt.Errorf("read %s: %w", recommendationsFile, err)
	}

	data, err = os.ReadFile(filepath.Join(s.dir, insightsFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.insights); err != nil {
			return fmt.Errorf("parse %s: %w", insightsFile, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("read %s: %w", insightsFile, err)
	}
	return nil
}

// upgrade migrates a version "1" record in memory: the metadata
// feedback_processed_at string becomes the explicit field.
func upgrade(rec *recommendation.Recommendation) {
	if rec.SchemaVersion == recommendation.SchemaVersion {
		return
	}
	if rec.FeedbackProcessedAt == nil {
		if raw, ok := rec.Metadata[recommendation.MetaFeedbackProcessedAt].(string); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				rec.FeedbackProcessedAt = &ts
			}
		}
	}
	rec.SchemaVersion = recommendation.SchemaVersion
}

// writeFile persists v as indented JSON via a temp file rename so a crash
// mid-write never truncates the store.
func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// SaveRecommendation inserts the recommendation, or replaces it wholesale if the id exists.
// A failed write leaves the in-memory state as it was, matching the file.
func (s *Store) SaveRecommendation(_ context.Context, rec *recommendation.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.recs[rec.ID]
	clone := *rec
	s.recs[rec.ID] = &clone
	if err := s.writeFile(recommendationsFile, s.recs); err != nil {
		if existed {
			s.recs[rec.ID] = prev
		} else {
			delete(s.recs, rec.ID)
		}
		return err
	}
	return nil
}

// GetRecommendation returns the recommendation or domain.ErrNotFound.
func (s *Store) GetRecommendation(_ context.Context, id string) (*recommendation.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	clone := *rec
	return &clone, nil
}

// ListRecommendations returns matching recommendations ordered by created_at descending,
// plus the total count before pagination.
func (s *Store) ListRecommendations(_ context.Context, filter database.RecommendationFilter) ([]recommendation.Recommendation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []recommendation.Recommendation
	for _, rec := range s.recs {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.TargetMaterial != "" && !strings.EqualFold(rec.TargetMaterial, filter.TargetMaterial) {
			continue
		}
		matched = append(matched, *rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	matched = paginate(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

// UpdateRecommendationStatus sets the status and bumps updated_at.
func (s *Store) UpdateRecommendationStatus(_ context.Context, id string, status recommendation.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	updated := *rec
	updated.Status = status
	updated.UpdatedAt = time.Now()
	s.recs[id] = &updated
	if err := s.writeFile(recommendationsFile, s.recs); err != nil {
		s.recs[id] = rec
		return err
	}
	return nil
}

// AttachFeedback stores the experiment result on the recommendation.
func (s *Store) AttachFeedback(_ context.Context, id string, result *experiment.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	clone := *result
	updated := *rec
	updated.ExperimentResult = &clone
	updated.UpdatedAt = time.Now()
	s.recs[id] = &updated
	if err := s.writeFile(recommendationsFile, s.recs); err != nil {
		s.recs[id] = rec
		return err
	}
	return nil
}

// InsertInsight stores a new insight.
func (s *Store) InsertInsight(_ context.Context, in *insight.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.insights
	s.insights = append(s.insights, *in)
	if err := s.writeFile(insightsFile, s.insights); err != nil {
		s.insights = prev
		return err
	}
	return nil
}

// DeleteInsightsByOrigin removes all insights derived from the given recommendation
// and returns the number removed. The kept insights are compacted into a
// fresh slice so a failed write cannot corrupt the prior state.
func (s *Store) DeleteInsightsByOrigin(_ context.Context, recommendationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]insight.Insight, 0, len(s.insights))
	deleted := 0
	for _, in := range s.insights {
		if in.OriginRecommendationID == recommendationID {
			deleted++
			continue
		}
		kept = append(kept, in)
	}
	if deleted == 0 {
		return 0, nil
	}
	prev := s.insights
	s.insights = kept
	if err := s.writeFile(insightsFile, s.insights); err != nil {
		s.insights = prev
		return 0, err
	}
	return deleted, nil
}

// ListInsightsByOrigin returns all insights derived from the recommendation.
func (s *Store) ListInsightsByOrigin(_ context.Context, recommendationID string) ([]insight.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []insight.Insight
	for _, in := range s.insights {
		if in.OriginRecommendationID == recommendationID {
			matched = append(matched, in)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// ListInsights returns matching insights ordered by created_at descending, plus
// the total count before pagination.
func (s *Store) ListInsights(_ context.Context, filter database.InsightFilter) ([]insight.Insight, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []insight.Insight
	for _, in := range s.insights {
		if filter.Source != "" && in.Source != filter.Source {
			continue
		}
		if filter.OriginID != "" && in.OriginRecommendationID != filter.OriginID {
			continue
		}
		if filter.TaskID != "" && in.TaskID != filter.TaskID {
			continue
		}
		matched = append(matched, in)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	matched = paginate(matched, filter.Offset, filter.Limit)
	return matched, total, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
