package service_test

import (
	"context"
	"testing"

	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/port/database"
	"github.com/formulab/desbank/internal/service"
)

func TestInsightList(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		source := insight.SourceExperimentValidated
		if i%2 == 0 {
			source = insight.SourceHistoricalExperiment
		}
		in := insight.FromCandidate(
			insight.Candidate{Title: "t", Content: "c"},
			source, "REC_origin", "task", 5,
		)
		if err := store.InsertInsight(ctx, in); err != nil {
			t.Fatalf("InsertInsight: %v", err)
		}
	}
	svc := service.NewInsightService(store)

	// Zero limit falls back to the default page size.
	page, total, err := svc.List(ctx, database.InsightFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 60 {
		t.Errorf("total = %d, want 60", total)
	}
	if len(page) != 50 {
		t.Errorf("len(page) = %d, want default page size 50", len(page))
	}

	historical, total, err := svc.List(ctx, database.InsightFilter{Source: insight.SourceHistoricalExperiment, Limit: 100})
	if err != nil {
		t.Fatalf("List (filtered): %v", err)
	}
	if total != 30 || len(historical) != 30 {
		t.Errorf("filtered total = %d, len = %d, want 30/30", total, len(historical))
	}

	byOrigin, err := svc.ListByOrigin(ctx, "REC_origin")
	if err != nil {
		t.Fatalf("ListByOrigin: %v", err)
	}
	if len(byOrigin) != 60 {
		t.Errorf("len(byOrigin) = %d, want 60", len(byOrigin))
	}
}
