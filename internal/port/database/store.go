// Package database defines the storage ports (interfaces).
package database

import (
	"context"

	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/domain/recommendation"
)

// RecommendationFilter narrows listings. Zero values mean "no filter".
// Offset/Limit paginate; a Limit of 0 means no limit.
type RecommendationFilter struct {
	Status         recommendation.Status
	TargetMaterial string
	Offset         int
	Limit          int
}

// RecommendationStore is the port for recommendation persistence.
// Every mutation is atomic per record; readers never observe partial writes.
type RecommendationStore interface {
	// SaveRecommendation inserts the recommendation, or replaces it
	// wholesale if the id already exists.
	SaveRecommendation(ctx context.Context, rec *recommendation.Recommendation) error

	// GetRecommendation returns the recommendation or domain.ErrNotFound.
	GetRecommendation(ctx context.Context, id string) (*recommendation.Recommendation, error)

	// ListRecommendations returns matching recommendations ordered by
	// created_at descending, plus the total count before pagination.
	ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]recommendation.Recommendation, int, error)

	// UpdateRecommendationStatus sets the status and bumps updated_at.
	UpdateRecommendationStatus(ctx context.Context, id string, status recommendation.Status) error

	// AttachFeedback stores the experiment result on the recommendation.
	AttachFeedback(ctx context.Context, id string, result *experiment.Result) error
}

// InsightFilter narrows insight listings.
type InsightFilter struct {
	Source   insight.Source
	OriginID string
	TaskID   string
	Offset   int
	Limit    int
}

// InsightStore is the port for distilled memory record persistence.
type InsightStore interface {
	// InsertInsight stores a new insight.
	InsertInsight(ctx context.Context, in *insight.Insight) error

	// DeleteInsightsByOrigin removes all insights derived from the given
	// recommendation and returns the number removed. Deleting an origin
	// with no matches returns 0, never an error.
	DeleteInsightsByOrigin(ctx context.Context, recommendationID string) (int, error)

	// ListInsightsByOrigin returns all insights derived from the recommendation.
	ListInsightsByOrigin(ctx context.Context, recommendationID string) ([]insight.Insight, error)

	// ListInsights returns matching insights ordered by created_at
	// descending, plus the total count before pagination.
	ListInsights(ctx context.Context, filter InsightFilter) ([]insight.Insight, int, error)
}

// Store combines the full storage surface. Backends implement it with a
// single type so one connection pool (or file directory) serves both
// entities.
type Store interface {
	RecommendationStore
	InsightStore
}
