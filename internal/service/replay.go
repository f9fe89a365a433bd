package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/formulab/desbank/internal/adapter/otel"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
	"github.com/formulab/desbank/internal/port/extractor"
)

const replayPageSize = 100

// ReplayOptions configures a bulk replay run.
type ReplayOptions struct {
	// StatusFilter selects which foreign records to consider.
	// Defaults to COMPLETED.
	StatusFilter recommendation.Status

	// Reprocess replays records whose feedback was already consolidated.
	Reprocess bool

	// Concurrency bounds parallel extraction calls. Defaults to 4.
	Concurrency int
}

// EntryError records one failed replay entry.
type EntryError struct {
	RecommendationID string `json:"recommendation_id"`
	Err              string `json:"error"`
}

// Report summarizes a replay run.
type Report struct {
	TotalLoaded   int          `json:"total_loaded"`
	Replayed      int          `json:"replayed"`
	Skipped       int          `json:"skipped"`
	MemoriesAdded int          `json:"memories_added"`
	Failures      []EntryError `json:"failures,omitempty"`
}

// ReplayService drains a foreign instance's recommendation store into the
// primary insight store. The foreign store is never mutated.
type ReplayService struct {
	insights database.InsightStore
	extract  extractor.Extractor
	log      *slog.Logger
}

// NewReplayService creates a ReplayService.
func NewReplayService(insights database.InsightStore, extract extractor.Extractor, log *slog.Logger) *ReplayService {
	return &ReplayService{insights: insights, extract: extract, log: log}
}

// Replay pages through the foreign store and re-derives memory records
// from its historical experiment results, tagged source
// historical_experiment. Entries without an experiment result are skipped;
// entries already consolidated are skipped unless opts.Reprocess. Per-entry
// failures land in the report, they never abort the batch.
func (s *ReplayService) Replay(ctx context.Context, foreign database.RecommendationStore, opts ReplayOptions) (*Report, error) {
	if opts.StatusFilter == "" {
		opts.StatusFilter = recommendation.StatusCompleted
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}

	ctx, span := otel.StartReplaySpan(ctx, string(opts.StatusFilter))
	defer span.End()

	var (
		mu     sync.Mutex
		report Report
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	offset := 0
	for {
		page, total, err := foreign.ListRecommendations(ctx, database.RecommendationFilter{
			Status: opts.StatusFilter,
			Offset: offset,
			Limit:  replayPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list foreign recommendations: %w", err)
		}
		if offset == 0 {
			report.TotalLoaded = total
		}
		if len(page) == 0 {
			break
		}
		offset += len(page)

		for i := range page {
			rec := page[i]
			if rec.ExperimentResult == nil {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				continue
			}
			if rec.HasProcessedFeedback() && !opts.Reprocess {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				added, err := s.replayOne(gctx, &rec)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failures = append(report.Failures, EntryError{
						RecommendationID: rec.ID,
						Err:              err.Error(),
					})
					return nil
				}
				report.Replayed++
				report.MemoriesAdded += added
				return nil
			})
		}

		if len(page) < replayPageSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Info("replay finished",
		"loaded", report.TotalLoaded,
		"replayed", report.Replayed,
		"skipped", report.Skipped,
		"memories_added", report.MemoriesAdded,
		"failures", len(report.Failures))
	return &report, nil
}

// replayOne re-derives memories for a single foreign record. Insights
// previously derived from the same origin id are retracted first so
// repeated replays stay idempotent.
func (s *ReplayService) replayOne(ctx context.Context, rec *recommendation.Recommendation) (int, error) {
	result := *rec.ExperimentResult
	if err := result.Normalize(); err != nil {
		return 0, fmt.Errorf("invalid historical result: %w", err)
	}
	score := result.PerformanceScore()

	candidates, err := s.extract.Extract(ctx, rec.Trajectory, &result)
	if err != nil {
		return 0, err
	}

	if _, err := s.insights.DeleteInsightsByOrigin(ctx, rec.ID); err != nil {
		return 0, fmt.Errorf("retract prior replay memories: %w", err)
	}

	added := 0
	for _, c := range candidates {
		if !c.Usable() {
			s.log.Warn("dropping unusable replay candidate", "recommendation_id", rec.ID, "title", c.Title)
			continue
		}
		in := insight.FromCandidate(c, insight.SourceHistoricalExperiment, rec.ID, rec.TaskID, score)
		if err := s.insights.InsertInsight(ctx, in); err != nil {
			s.log.Error("replay memory insert failed", "recommendation_id", rec.ID, "title", in.Title, "error", err)
			continue
		}
		added++
	}
	return added, nil
}
