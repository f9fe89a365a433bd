package service

import (
	"context"

	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/port/database"
)

// defaultInsightPageSize bounds unpaginated listings.
const defaultInsightPageSize = 50

// InsightService serves the distilled memory records.
type InsightService struct {
	db database.InsightStore
}

// NewInsightService creates an InsightService.
func NewInsightService(db database.InsightStore) *InsightService {
	return &InsightService{db: db}
}

// List returns insights matching the filter plus the total count. A zero
// limit is replaced with the default page size.
func (s *InsightService) List(ctx context.Context, filter database.InsightFilter) ([]insight.Insight, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultInsightPageSize
	}
	return s.db.ListInsights(ctx, filter)
}

// ListByOrigin returns all insights derived from a recommendation.
func (s *InsightService) ListByOrigin(ctx context.Context, recommendationID string) ([]insight.Insight, error) {
	return s.db.ListInsightsByOrigin(ctx, recommendationID)
}
