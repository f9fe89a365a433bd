package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/formulab/desbank/internal/domain"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
)

func newRec(taskID string) *recommendation.Recommendation {
	return recommendation.New(recommendation.CreateRequest{
		TaskID:      taskID,
		Formulation: map[string]any{"hba": "betaine", "hbd": "glycerol"},
		Confidence:  0.6,
	})
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec := newRec("task-json-1")
	if err := store.SaveRecommendation(ctx, rec); err != nil {
		t.Fatalf("SaveRecommendation: %v", err)
	}

	// A fresh Open against the same directory must see the record.
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}
	got, err := reopened.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation: %v", err)
	}
	if got.TaskID != "task-json-1" {
		t.Errorf("TaskID = %q, want task-json-1", got.TaskID)
	}
	if got.Formulation["hbd"] != "glycerol" {
		t.Errorf("Formulation = %v, want hbd=glycerol", got.Formulation)
	}
}

func TestGetMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.GetRecommendation(context.Background(), "REC_absent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRecommendation error = %v, want ErrNotFound", err)
	}
}

func TestVersionUpgradeOnLoad(t *testing.T) {
	dir := t.TempDir()

	// A version "1" export carries the feedback marker only in metadata.
	legacy := `{
		"REC_20250101_080000_old_aaaa1111": {
			"recommendation_id": "REC_20250101_080000_old_aaaa1111",
			"task_id": "old",
			"formulation": {"hba": "ChCl"},
			"status": "COMPLETED",
			"version": "1",
			"metadata": {"feedback_processed_at": "2025-01-02T10:00:00Z"},
			"created_at": "2025-01-01T08:00:00Z",
			"updated_at": "2025-01-02T10:00:00Z"
		}
	}`
	if err := os.WriteFile(filepath.Join(dir, "recommendations.json"), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := store.GetRecommendation(context.Background(), "REC_20250101_080000_old_aaaa1111")
	if err != nil {
		t.Fatalf("GetRecommendation: %v", err)
	}
	if got.SchemaVersion != recommendation.SchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", got.SchemaVersion, recommendation.SchemaVersion)
	}
	if !got.HasProcessedFeedback() {
		t.Fatal("HasProcessedFeedback() = false, want marker lifted from metadata")
	}
	want := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	if !got.FeedbackProcessedAt.Equal(want) {
		t.Errorf("FeedbackProcessedAt = %v, want %v", got.FeedbackProcessedAt, want)
	}
}

func TestListRecommendationsFilterAndOrder(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	older := newRec("task-a")
	older.Status = recommendation.StatusPending
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newRec("task-a")
	newer.Status = recommendation.StatusPending
	cancelled := newRec("task-b")
	cancelled.Status = recommendation.StatusCancelled
	for _, r := range []*recommendation.Recommendation{older, newer, cancelled} {
		if err := store.SaveRecommendation(ctx, r); err != nil {
			t.Fatalf("SaveRecommendation: %v", err)
		}
	}

	recs, total, err := store.ListRecommendations(ctx, database.RecommendationFilter{Status: recommendation.StatusPending})
	if err != nil {
		t.Fatalf("ListRecommendations: %v", err)
	}
	if total != 2 || len(recs) != 2 {
		t.Fatalf("total = %d, len = %d, want 2/2", total, len(recs))
	}
	if recs[0].ID != newer.ID {
		t.Errorf("first listed = %s, want newest %s", recs[0].ID, newer.ID)
	}

	recs, total, err = store.ListRecommendations(ctx, database.RecommendationFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListRecommendations (page): %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(recs) != 1 {
		t.Errorf("len = %d, want 1", len(recs))
	}
}

func TestInsightRetraction(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	for i, origin := range []string{"REC_a", "REC_a", "REC_b"} {
		in := insight.FromCandidate(
			insight.Candidate{Title: "insight", Content: "body"},
			insight.SourceExperimentValidated, origin, "task", float64(i),
		)
		if err := store.InsertInsight(ctx, in); err != nil {
			t.Fatalf("InsertInsight: %v", err)
		}
	}

	deleted, err := store.DeleteInsightsByOrigin(ctx, "REC_a")
	if err != nil {
		t.Fatalf("DeleteInsightsByOrigin: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	remaining, total, err := store.ListInsights(ctx, database.InsightFilter{})
	if err != nil {
		t.Fatalf("ListInsights: %v", err)
	}
	if total != 1 || len(remaining) != 1 || remaining[0].OriginRecommendationID != "REC_b" {
		t.Errorf("remaining = %+v (total %d), want only REC_b", remaining, total)
	}

	deleted, err = store.DeleteInsightsByOrigin(ctx, "REC_missing")
	if err != nil || deleted != 0 {
		t.Errorf("DeleteInsightsByOrigin(missing) = (%d, %v), want (0, nil)", deleted, err)
	}
}

// blockWrites replaces the store file with a directory so the rename in
// writeFile fails. The returned func undoes it.
func blockWrites(t *testing.T, dir, name string) func() {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("remove %s: %v", name, err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", name, err)
	}
	return func() {
		if err := os.RemoveAll(path); err != nil {
			t.Fatalf("unblock %s: %v", name, err)
		}
	}
}

func TestFailedWriteRollsBackMemory(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	rec := newRec("task-rollback")
	if err := store.SaveRecommendation(ctx, rec); err != nil {
		t.Fatalf("SaveRecommendation: %v", err)
	}
	for i := 0; i < 2; i++ {
		in := insight.FromCandidate(
			insight.Candidate{Title: "insight", Content: "body"},
			insight.SourceExperimentValidated, "REC_x", "task", float64(i),
		)
		if err := store.InsertInsight(ctx, in); err != nil {
			t.Fatalf("InsertInsight: %v", err)
		}
	}

	undo := blockWrites(t, dir, insightsFile)
	if _, err := store.DeleteInsightsByOrigin(ctx, "REC_x"); err == nil {
		t.Fatal("DeleteInsightsByOrigin succeeded with an unwritable store file")
	}
	// A failed write must not leave memory ahead of the file.
	if got, err := store.ListInsightsByOrigin(ctx, "REC_x"); err != nil || len(got) != 2 {
		t.Fatalf("insights after failed delete = (%d, %v), want 2 kept", len(got), err)
	}
	extra := insight.FromCandidate(
		insight.Candidate{Title: "extra", Content: "body"},
		insight.SourceExperimentValidated, "REC_x", "task", 9,
	)
	if err := store.InsertInsight(ctx, extra); err == nil {
		t.Fatal("InsertInsight succeeded with an unwritable store file")
	}
	if got, _ := store.ListInsightsByOrigin(ctx, "REC_x"); len(got) != 2 {
		t.Fatalf("insights after failed insert = %d, want 2", len(got))
	}
	undo()

	// Once the file is writable again the retraction goes through whole.
	deleted, err := store.DeleteInsightsByOrigin(ctx, "REC_x")
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteInsightsByOrigin after unblock = (%d, %v), want (2, nil)", deleted, err)
	}

	undoRec := blockWrites(t, dir, recommendationsFile)
	defer undoRec()
	if err := store.UpdateRecommendationStatus(ctx, rec.ID, recommendation.StatusPending); err == nil {
		t.Fatal("UpdateRecommendationStatus succeeded with an unwritable store file")
	}
	got, err := store.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation: %v", err)
	}
	if got.Status != recommendation.StatusGenerating {
		t.Fatalf("status after failed update = %q, want %q", got.Status, recommendation.StatusGenerating)
	}
}

func TestAttachFeedbackMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = store.UpdateRecommendationStatus(context.Background(), "REC_absent", recommendation.StatusPending)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateRecommendationStatus error = %v, want ErrNotFound", err)
	}
}
