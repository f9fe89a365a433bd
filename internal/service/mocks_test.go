package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/formulab/desbank/internal/domain"
	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
	"github.com/formulab/desbank/internal/port/messagequeue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// mockStore implements database.Store in memory.
type mockStore struct {
	mu       sync.Mutex
	recs     map[string]*recommendation.Recommendation
	insights []insight.Insight

	saveErr    error
	getErr     error
	statusErr  error
	attachErr  error
	insertErr  error
	retractErr error
}

func newMockStore() *mockStore {
	return &mockStore{recs: map[string]*recommendation.Recommendation{}}
}

func (m *mockStore) SaveRecommendation(_ context.Context, rec *recommendation.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	clone := *rec
	m.recs[rec.ID] = &clone
	return nil
}

func (m *mockStore) GetRecommendation(_ context.Context, id string) (*recommendation.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.recs[id]
	if !ok {
		return nil, fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	clone := *rec
	return &clone, nil
}

func (m *mockStore) ListRecommendations(_ context.Context, filter database.RecommendationFilter) ([]recommendation.Recommendation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []recommendation.Recommendation
	for _, rec := range m.recs {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.TargetMaterial != "" && rec.TargetMaterial != filter.TargetMaterial {
			continue
		}
		matched = append(matched, *rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *mockStore) UpdateRecommendationStatus(_ context.Context, id string, status recommendation.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		err := m.statusErr
		m.statusErr = nil
		return err
	}
	rec, ok := m.recs[id]
	if !ok {
		return fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	rec.Status = status
	return nil
}

func (m *mockStore) AttachFeedback(_ context.Context, id string, result *experiment.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	rec, ok := m.recs[id]
	if !ok {
		return fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	clone := *result
	rec.ExperimentResult = &clone
	return nil
}

func (m *mockStore) InsertInsight(_ context.Context, in *insight.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.insights = append(m.insights, *in)
	return nil
}

func (m *mockStore) DeleteInsightsByOrigin(_ context.Context, recommendationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retractErr != nil {
		return 0, m.retractErr
	}
	kept := m.insights[:0]
	deleted := 0
	for _, in := range m.insights {
		if in.OriginRecommendationID == recommendationID {
			deleted++
			continue
		}
		kept = append(kept, in)
	}
	m.insights = kept
	return deleted, nil
}

func (m *mockStore) ListInsightsByOrigin(_ context.Context, recommendationID string) ([]insight.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []insight.Insight
	for _, in := range m.insights {
		if in.OriginRecommendationID == recommendationID {
			matched = append(matched, in)
		}
	}
	return matched, nil
}

func (m *mockStore) ListInsights(_ context.Context, filter database.InsightFilter) ([]insight.Insight, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []insight.Insight
	for _, in := range m.insights {
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
	total := len(matched)
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *mockStore) insightCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.insights)
}

// mockExtractor returns canned candidates or an error; Extract can also be
// blocked on a channel to hold a job in flight.
type mockExtractor struct {
	candidates []insight.Candidate
	err        error
	block      chan struct{}

	mu    sync.Mutex
	calls int
}

func (m *mockExtractor) Extract(ctx context.Context, _ json.RawMessage, _ *experiment.Result) ([]insight.Candidate, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

func (m *mockExtractor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockQueue records published subjects.
type mockQueue struct {
	mu        sync.Mutex
	published []string
}

func (m *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, subject)
	return nil
}

func (m *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *mockQueue) Drain() error { return nil }

func (m *mockQueue) Close() error { return nil }

func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}
