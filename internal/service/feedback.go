package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/formulab/desbank/internal/adapter/otel"
	"github.com/formulab/desbank/internal/domain"
	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/logger"
	"github.com/formulab/desbank/internal/port/database"
	"github.com/formulab/desbank/internal/port/extractor"
	"github.com/formulab/desbank/internal/port/jobstatus"
	"github.com/formulab/desbank/internal/port/messagequeue"
)

// Mode selects how Submit returns.
type Mode string

const (
	// ModeAsync accepts the submission and returns the initial processing
	// record; the job runs in the background.
	ModeAsync Mode = "async"

	// ModeSync blocks until the job is finalized and returns its record.
	ModeSync Mode = "sync"
)

// FeedbackService runs the asynchronous feedback consolidation pipeline:
// it accepts one experiment result per recommendation at a time, derives
// memory records through the extractor, and drives the recommendation's
// status machine to its terminal state.
type FeedbackService struct {
	db      database.Store
	jobs    jobstatus.Store
	extract extractor.Extractor
	queue   messagequeue.Queue
	pool    *Pool
	metrics *otel.Metrics
	log     *slog.Logger

	maxPending int
	pending    atomic.Int64

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewFeedbackService creates a FeedbackService. metrics may be nil when
// telemetry is disabled.
func NewFeedbackService(db database.Store, jobs jobstatus.Store, extract extractor.Extractor, queue messagequeue.Queue, pool *Pool, metrics *otel.Metrics, log *slog.Logger) *FeedbackService {
	return &FeedbackService{
		db:       db,
		jobs:     jobs,
		extract:  extract,
		queue:    queue,
		pool:     pool,
		metrics:  metrics,
		log:      log,
		inFlight: map[string]struct{}{},
	}
}

// SetQueueLimit bounds the number of async jobs pending at once; further
// submissions are rejected with domain.ErrConflict until jobs drain.
// Zero means unbounded.
func (s *FeedbackService) SetQueueLimit(n int) {
	s.maxPending = n
}

// Submit accepts an experiment result for a recommendation. The result is
// validated and the recommendation moved to PROCESSING before Submit
// returns; the consolidation job then runs on the worker pool. At most one
// job per recommendation id is in flight: a second submission while the
// first is unfinished returns domain.ErrConflict.
//
// Async mode returns the freshly written processing record. Sync mode
// blocks until the job finishes and returns the finalized record; when
// the job failed, the failing error is returned alongside it.
func (s *FeedbackService) Submit(ctx context.Context, recommendationID string, result *experiment.Result, mode Mode) (*jobstatus.Record, error) {
	if result == nil {
		return nil, fmt.Errorf("experiment result is required: %w", domain.ErrValidation)
	}
	// Background job logs carry the submit call's request id.
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, uuid.NewString())
	}
	if err := result.Normalize(); err != nil {
		return nil, err
	}
	if result.HighSolubility() {
		s.log.Warn("unusually high solubility reported",
			"recommendation_id", recommendationID,
			"solubility", *result.Solubility,
			"unit", result.SolubilityUnit)
	}

	rec, err := s.db.GetRecommendation(ctx, recommendationID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.AcceptsFeedback() {
		return nil, fmt.Errorf("recommendation %s in status %s does not accept feedback: %w",
			recommendationID, rec.Status, domain.ErrInvalidState)
	}

	if !s.acquire(recommendationID) {
		if s.metrics != nil {
			s.metrics.JobsConflicted.Add(ctx, 1)
		}
		return nil, fmt.Errorf("recommendation %s: %w", recommendationID, domain.ErrConflict)
	}
	async := mode != ModeSync
	if async {
		// Reserve the pending slot before the bound check so concurrent
		// submissions cannot slip past it together.
		if n := s.pending.Add(1); s.maxPending > 0 && n > int64(s.maxPending) {
			s.pending.Add(-1)
			s.release(recommendationID)
			return nil, fmt.Errorf("feedback queue full (%d pending): %w", s.maxPending, domain.ErrConflict)
		}
	}
	abort := func() {
		if async {
			s.pending.Add(-1)
		}
		s.release(recommendationID)
	}

	record := &jobstatus.Record{
		RecommendationID: recommendationID,
		State:            jobstatus.StateProcessing,
		StartedAt:        time.Now(),
	}
	if err := s.jobs.Put(ctx, record); err != nil {
		abort()
		return nil, fmt.Errorf("write job status: %w", err)
	}
	if err := s.db.UpdateRecommendationStatus(ctx, recommendationID, recommendation.StatusProcessing); err != nil {
		// A rejected submission must not leave a processing record behind
		// for CheckStatus to report.
		if delErr := s.jobs.Delete(ctx, recommendationID); delErr != nil {
			s.log.Error("drop job status for rejected submission",
				"recommendation_id", recommendationID, "error", delErr)
		}
		abort()
		return nil, err
	}
	s.publishEvent(ctx, messagequeue.SubjectFeedbackAccepted, record)

	if mode == ModeSync {
		// The guard is held across the inline run; release happens in runJob.
		return s.runJob(ctx, recommendationID, result, record.StartedAt)
	}

	job := *record
	res := *result
	jobCtx := logger.WithRequestID(context.Background(), logger.RequestID(ctx))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)
		_, _ = s.runJob(jobCtx, job.RecommendationID, &res, job.StartedAt)
	}()
	return record, nil
}

// CheckStatus returns the job status record for a recommendation, or
// domain.ErrNotFound for ids that were never submitted (or whose record
// has expired).
func (s *FeedbackService) CheckStatus(ctx context.Context, recommendationID string) (*jobstatus.Record, error) {
	return s.jobs.Get(ctx, recommendationID)
}

// Close waits for all in-flight jobs to finish.
func (s *FeedbackService) Close() {
	s.wg.Wait()
}

func (s *FeedbackService) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *FeedbackService) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// runJob executes the consolidation pipeline for one accepted submission
// and always finalizes the job status record before releasing the
// in-flight guard. It returns the finalized record and, for failed jobs,
// the error that failed them.
func (s *FeedbackService) runJob(ctx context.Context, id string, result *experiment.Result, startedAt time.Time) (*jobstatus.Record, error) {
	var (
		final  *jobstatus.Record
		jobErr error
	)
	_ = s.pool.Run(ctx, func() error {
		final, jobErr = s.consolidate(ctx, id, result, startedAt)
		return nil
	})
	s.release(id)
	if final == nil {
		// Pool acquisition failed (context cancelled before a slot opened).
		final, jobErr = s.finalizeFailure(ctx, id, startedAt, fmt.Errorf("job never started: %w", ctx.Err()))
	}
	return final, jobErr
}

func (s *FeedbackService) consolidate(ctx context.Context, id string, result *experiment.Result, startedAt time.Time) (*jobstatus.Record, error) {
	rec, err := s.db.GetRecommendation(ctx, id)
	if err != nil {
		return s.finalizeFailure(ctx, id, startedAt, err)
	}

	isUpdate := rec.HasProcessedFeedback()
	ctx, span := otel.StartFeedbackSpan(ctx, id, rec.TaskID, isUpdate)
	defer span.End()
	if s.metrics != nil {
		s.metrics.JobsStarted.Add(ctx, 1)
	}

	deletedMemories := 0
	if isUpdate {
		deletedMemories, err = s.db.DeleteInsightsByOrigin(ctx, id)
		if err != nil {
			span.SetStatus(codes.Error, "retraction failed")
			return s.finalizeFailure(ctx, id, startedAt, fmt.Errorf("retract previous memories: %w", err))
		}
		if s.metrics != nil {
			s.metrics.MemoriesRetracted.Add(ctx, int64(deletedMemories))
		}
		s.log.Info("previous memories retracted", "recommendation_id", id, "deleted", deletedMemories)
	}

	if err := s.db.AttachFeedback(ctx, id, result); err != nil {
		span.SetStatus(codes.Error, "attach failed")
		return s.finalizeFailure(ctx, id, startedAt, err)
	}
	score := result.PerformanceScore()

	titles, inserted, err := s.extractAndStore(ctx, rec, result, score)
	if err != nil {
		span.SetStatus(codes.Error, "extraction failed")
		return s.finalizeFailure(ctx, id, startedAt, err)
	}

	now := time.Now()
	rec.Status = recommendation.StatusCompleted
	rec.ExperimentResult = result
	rec.FeedbackProcessedAt = &now
	rec.UpdatedAt = now
	rec.SetMeta(recommendation.MetaFeedbackProcessedAt, now.Format(time.RFC3339))
	rec.SetMeta(recommendation.MetaIsUpdated, isUpdate)
	rec.SetMeta(recommendation.MetaDeletedMemoriesCount, deletedMemories)
	if err := s.db.SaveRecommendation(ctx, rec); err != nil {
		span.SetStatus(codes.Error, "save failed")
		return s.finalizeFailure(ctx, id, startedAt, err)
	}

	completed := time.Now()
	record := &jobstatus.Record{
		RecommendationID: id,
		State:            jobstatus.StateCompleted,
		StartedAt:        startedAt,
		CompletedAt:      &completed,
		Result: &jobstatus.Result{
			PerformanceScore: score,
			Solubility:       result.Solubility,
			SolubilityUnit:   result.SolubilityUnit,
			IsLiquidFormed:   result.IsLiquidFormed,
			MemoryTitles:     titles,
			NumMemories:      inserted,
			IsUpdate:         isUpdate,
			DeletedMemories:  deletedMemories,
		},
	}
	if err := s.jobs.Put(ctx, record); err != nil {
		s.log.Error("finalize job status failed", "recommendation_id", id, "error", err)
	}
	s.publishEvent(ctx, messagequeue.SubjectFeedbackCompleted, record)
	if s.metrics != nil {
		s.metrics.JobsCompleted.Add(ctx, 1)
		s.metrics.JobDuration.Record(ctx, completed.Sub(startedAt).Seconds())
	}
	s.log.Info("feedback consolidated",
		"recommendation_id", id,
		"request_id", logger.RequestID(ctx),
		"score", score,
		"memories", inserted,
		"is_update", isUpdate)
	return record, nil
}

// extractAndStore runs the extractor behind its span, normalizes the
// candidates and inserts the kept ones. Insertion is best-effort: a
// failed insert is logged and skipped, it does not fail the job.
func (s *FeedbackService) extractAndStore(ctx context.Context, rec *recommendation.Recommendation, result *experiment.Result, score float64) ([]string, int, error) {
	ctx, span := otel.StartExtractionSpan(ctx, rec.ID)
	defer span.End()

	extractStart := time.Now()
	candidates, err := s.extract.Extract(ctx, rec.Trajectory, result)
	if s.metrics != nil {
		s.metrics.ExtractionDuration.Record(ctx, time.Since(extractStart).Seconds())
	}
	if err != nil {
		span.SetStatus(codes.Error, "extract failed")
		return nil, 0, err
	}

	titles := make([]string, 0, len(candidates))
	inserted := 0
	for _, c := range candidates {
		if !c.Usable() {
			s.log.Warn("dropping unusable memory candidate", "recommendation_id", rec.ID, "title", c.Title)
			continue
		}
		in := insight.FromCandidate(c, insight.SourceExperimentValidated, rec.ID, rec.TaskID, score)
		if err := s.db.InsertInsight(ctx, in); err != nil {
			s.log.Error("memory insert failed", "recommendation_id", rec.ID, "title", in.Title, "error", err)
			continue
		}
		titles = append(titles, in.Title)
		inserted++
	}
	if s.metrics != nil {
		s.metrics.MemoriesExtracted.Add(ctx, int64(inserted))
	}
	return titles, inserted, nil
}

// finalizeFailure moves the recommendation to FAILED and writes the failed
// job status record. In async mode the record is the only trace a caller
// sees; in sync mode the job error is also surfaced by Submit.
func (s *FeedbackService) finalizeFailure(ctx context.Context, id string, startedAt time.Time, jobErr error) (*jobstatus.Record, error) {
	s.log.Error("feedback job failed",
		"recommendation_id", id,
		"request_id", logger.RequestID(ctx),
		"error", jobErr)

	if err := s.db.UpdateRecommendationStatus(ctx, id, recommendation.StatusFailed); err != nil {
		s.log.Error("mark recommendation failed", "recommendation_id", id, "error", err)
	}

	completed := time.Now()
	record := &jobstatus.Record{
		RecommendationID: id,
		State:            jobstatus.StateFailed,
		StartedAt:        startedAt,
		CompletedAt:      &completed,
		Error:            jobErr.Error(),
	}
	if err := s.jobs.Put(ctx, record); err != nil {
		s.log.Error("finalize job status failed", "recommendation_id", id, "error", err)
	}
	s.publishEvent(ctx, messagequeue.SubjectFeedbackFailed, record)
	if s.metrics != nil {
		s.metrics.JobsFailed.Add(ctx, 1)
	}
	return record, jobErr
}

func (s *FeedbackService) publishEvent(ctx context.Context, subject string, record *jobstatus.Record) {
	data, err := json.Marshal(record)
	if err != nil {
		s.log.Error("marshal event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Error("publish event", "subject", subject, "error", err)
	}
}
