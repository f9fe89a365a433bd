package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
	"github.com/formulab/desbank/internal/service"
)

// seedForeign populates a store the way a finished foreign instance looks:
// consolidated records, one still pending, one completed without a result.
func seedForeign(t *testing.T) (*mockStore, []string) {
	t.Helper()
	foreign := newMockStore()
	ctx := context.Background()

	var consolidated []string
	for i, sol := range []float64{3.0, 8.5} {
		rec := recommendation.New(recommendation.CreateRequest{
			TaskID:      "historic",
			Formulation: map[string]any{"pair": i},
			Confidence:  0.5,
		})
		rec.Status = recommendation.StatusCompleted
		result, err := experiment.New(true, &sol)
		if err != nil {
			t.Fatalf("experiment.New: %v", err)
		}
		rec.ExperimentResult = result
		processed := time.Now().Add(-24 * time.Hour)
		rec.FeedbackProcessedAt = &processed
		if err := foreign.SaveRecommendation(ctx, rec); err != nil {
			t.Fatalf("seed foreign: %v", err)
		}
		consolidated = append(consolidated, rec.ID)
	}

	noResult := recommendation.New(recommendation.CreateRequest{
		TaskID:      "historic",
		Formulation: map[string]any{"pair": "x"},
	})
	noResult.Status = recommendation.StatusCompleted
	if err := foreign.SaveRecommendation(ctx, noResult); err != nil {
		t.Fatalf("seed foreign: %v", err)
	}

	pending := recommendation.New(recommendation.CreateRequest{
		TaskID:      "historic",
		Formulation: map[string]any{"pair": "y"},
	})
	pending.Status = recommendation.StatusPending
	if err := foreign.SaveRecommendation(ctx, pending); err != nil {
		t.Fatalf("seed foreign: %v", err)
	}

	return foreign, consolidated
}

func TestReplay_ImportsHistoricalResults(t *testing.T) {
	foreign, _ := seedForeign(t)
	primary := newMockStore()
	ext := &mockExtractor{candidates: []insight.Candidate{{Title: "old lesson", Content: "still true"}}}
	svc := service.NewReplayService(primary, ext, discardLogger())

	report, err := svc.Replay(context.Background(), foreign, service.ReplayOptions{Reprocess: true})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	// Status filter defaults to COMPLETED: the pending record is never
	// loaded, the resultless completed one is loaded and skipped.
	if report.TotalLoaded != 3 {
		t.Errorf("TotalLoaded = %d, want 3", report.TotalLoaded)
	}
	if report.Replayed != 2 {
		t.Errorf("Replayed = %d, want 2", report.Replayed)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	if report.MemoriesAdded != 2 {
		t.Errorf("MemoriesAdded = %d, want 2", report.MemoriesAdded)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %v, want none", report.Failures)
	}

	for _, in := range primary.insights {
		if in.Source != insight.SourceHistoricalExperiment {
			t.Errorf("insight source = %q, want historical_experiment", in.Source)
		}
	}

	// The foreign store is never mutated.
	recs, _, err := foreign.ListRecommendations(context.Background(), database.RecommendationFilter{})
	if err != nil {
		t.Fatalf("foreign ListRecommendations: %v", err)
	}
	for _, rec := range recs {
		if rec.Status == recommendation.StatusProcessing {
			t.Errorf("foreign record %s mutated to PROCESSING", rec.ID)
		}
	}
}

func TestReplay_SkipsConsolidatedWithoutReprocess(t *testing.T) {
	foreign, _ := seedForeign(t)
	primary := newMockStore()
	ext := &mockExtractor{candidates: []insight.Candidate{{Title: "t", Content: "c"}}}
	svc := service.NewReplayService(primary, ext, discardLogger())

	report, err := svc.Replay(context.Background(), foreign, service.ReplayOptions{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if report.Replayed != 0 {
		t.Errorf("Replayed = %d, want 0 (all consolidated, Reprocess off)", report.Replayed)
	}
	if report.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", report.Skipped)
	}
	if ext.callCount() != 0 {
		t.Errorf("extractor called %d times, want 0", ext.callCount())
	}
}

func TestReplay_Idempotent(t *testing.T) {
	foreign, _ := seedForeign(t)
	primary := newMockStore()
	ext := &mockExtractor{candidates: []insight.Candidate{{Title: "t", Content: "c"}}}
	svc := service.NewReplayService(primary, ext, discardLogger())

	opts := service.ReplayOptions{Reprocess: true}
	if _, err := svc.Replay(context.Background(), foreign, opts); err != nil {
		t.Fatalf("Replay (first): %v", err)
	}
	first := primary.insightCount()

	if _, err := svc.Replay(context.Background(), foreign, opts); err != nil {
		t.Fatalf("Replay (second): %v", err)
	}
	if primary.insightCount() != first {
		t.Errorf("insightCount = %d after re-run, want %d (prior replay memories retracted)", primary.insightCount(), first)
	}
}

func TestReplay_CollectsPerEntryFailures(t *testing.T) {
	foreign, consolidated := seedForeign(t)
	primary := newMockStore()
	ext := &mockExtractor{err: errors.New("extractor down")}
	svc := service.NewReplayService(primary, ext, discardLogger())

	report, err := svc.Replay(context.Background(), foreign, service.ReplayOptions{Reprocess: true})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(report.Failures) != len(consolidated) {
		t.Fatalf("len(Failures) = %d, want %d", len(report.Failures), len(consolidated))
	}
	if report.Replayed != 0 {
		t.Errorf("Replayed = %d, want 0", report.Replayed)
	}
	for _, f := range report.Failures {
		if f.Err == "" {
			t.Errorf("failure for %s carries no message", f.RecommendationID)
		}
	}
}
