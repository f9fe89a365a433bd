package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/formulab/desbank/internal/domain"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
	"github.com/formulab/desbank/internal/port/messagequeue"
)

// RecommendationService manages the recommendation lifecycle on behalf of
// the upstream generator and downstream consumers.
type RecommendationService struct {
	db    database.RecommendationStore
	queue messagequeue.Queue
	log   *slog.Logger
}

// NewRecommendationService creates a RecommendationService.
func NewRecommendationService(db database.RecommendationStore, queue messagequeue.Queue, log *slog.Logger) *RecommendationService {
	return &RecommendationService{db: db, queue: queue, log: log}
}

// Create registers a new recommendation. A request that already carries
// its derivation trace is stored PENDING (awaiting experiment); otherwise
// it stays GENERATING until MarkReady.
func (s *RecommendationService) Create(ctx context.Context, req recommendation.CreateRequest) (*recommendation.Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrValidation)
	}

	rec := recommendation.New(req)
	if len(req.Trajectory) > 0 {
		rec.Status = recommendation.StatusPending
	}
	if err := s.db.SaveRecommendation(ctx, rec); err != nil {
		return nil, err
	}

	s.publish(ctx, messagequeue.SubjectRecommendationCreated, rec)
	s.log.Info("recommendation created", "recommendation_id", rec.ID, "task_id", rec.TaskID, "status", rec.Status)
	return rec, nil
}

// MarkReady moves a GENERATING recommendation to PENDING once the
// generator has attached its trajectory.
func (s *RecommendationService) MarkReady(ctx context.Context, id string) error {
	rec, err := s.db.GetRecommendation(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.CanTransitionTo(recommendation.StatusPending) {
		return fmt.Errorf("recommendation %s in status %s cannot become pending: %w",
			id, rec.Status, domain.ErrInvalidState)
	}
	return s.db.UpdateRecommendationStatus(ctx, id, recommendation.StatusPending)
}

// Get returns a recommendation by id.
func (s *RecommendationService) Get(ctx context.Context, id string) (*recommendation.Recommendation, error) {
	return s.db.GetRecommendation(ctx, id)
}

// List returns recommendations matching the filter plus the total count.
func (s *RecommendationService) List(ctx context.Context, filter database.RecommendationFilter) ([]recommendation.Recommendation, int, error) {
	return s.db.ListRecommendations(ctx, filter)
}

// Cancel withdraws a PENDING recommendation. Any other status is an
// invalid-state error: processing cannot be interrupted and terminal
// states stay terminal.
func (s *RecommendationService) Cancel(ctx context.Context, id string) error {
	rec, err := s.db.GetRecommendation(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.CanTransitionTo(recommendation.StatusCancelled) {
		return fmt.Errorf("recommendation %s in status %s cannot be cancelled: %w",
			id, rec.Status, domain.ErrInvalidState)
	}
	if err := s.db.UpdateRecommendationStatus(ctx, id, recommendation.StatusCancelled); err != nil {
		return err
	}

	rec.Status = recommendation.StatusCancelled
	s.publish(ctx, messagequeue.SubjectRecommendationCancelled, rec)
	s.log.Info("recommendation cancelled", "recommendation_id", id)
	return nil
}

func (s *RecommendationService) publish(ctx context.Context, subject string, rec *recommendation.Recommendation) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Error("marshal event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Error("publish event", "subject", subject, "error", err)
	}
}
