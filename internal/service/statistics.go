package service

import (
	"context"
	"sort"
	"time"

	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
)

// Summary aggregates the whole recommendation bank.
type Summary struct {
	Total              int                           `json:"total"`
	ByStatus           map[recommendation.Status]int `json:"by_status"`
	CompletionRate     float64                       `json:"completion_rate"`
	AveragePerformance float64                       `json:"average_performance"`
}

// MaterialStats aggregates outcomes for one target material.
type MaterialStats struct {
	TargetMaterial     string  `json:"target_material"`
	Total              int     `json:"total"`
	Completed          int     `json:"completed"`
	AveragePerformance float64 `json:"average_performance"`
	BestPerformance    float64 `json:"best_performance"`
}

// TrendPoint is one day of completed-feedback performance.
type TrendPoint struct {
	Day                time.Time `json:"day"`
	Completed          int       `json:"completed"`
	AveragePerformance float64   `json:"average_performance"`
}

// FormulationScore ranks one consolidated recommendation.
type FormulationScore struct {
	RecommendationID string         `json:"recommendation_id"`
	TargetMaterial   string         `json:"target_material,omitempty"`
	Formulation      map[string]any `json:"formulation"`
	PerformanceScore float64        `json:"performance_score"`
}

// StatisticsService computes aggregates over the recommendation bank.
// Everything is derived from the store's listing; performance scores are
// recomputed from the stored experiment results, never trusted from disk.
type StatisticsService struct {
	db database.RecommendationStore
}

// NewStatisticsService creates a StatisticsService.
func NewStatisticsService(db database.RecommendationStore) *StatisticsService {
	return &StatisticsService{db: db}
}

func (s *StatisticsService) loadAll(ctx context.Context) ([]recommendation.Recommendation, error) {
	recs, _, err := s.db.ListRecommendations(ctx, database.RecommendationFilter{})
	return recs, err
}

// Summarize computes bank-wide totals. Completion rate counts COMPLETED
// over all records; average performance covers completed records with an
// attached result.
func (s *StatisticsService) Summarize(ctx context.Context) (*Summary, error) {
	recs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Total:    len(recs),
		ByStatus: map[recommendation.Status]int{},
	}
	scoreSum := 0.0
	scored := 0
	for i := range recs {
		rec := &recs[i]
		sum.ByStatus[rec.Status]++
		if rec.Status == recommendation.StatusCompleted && rec.ExperimentResult != nil {
			scoreSum += rec.ExperimentResult.PerformanceScore()
			scored++
		}
	}
	if sum.Total > 0 {
		sum.CompletionRate = float64(sum.ByStatus[recommendation.StatusCompleted]) / float64(sum.Total)
	}
	if scored > 0 {
		sum.AveragePerformance = scoreSum / float64(scored)
	}
	return sum, nil
}

// ByMaterial groups outcomes per target material, sorted by average
// performance descending. Records without a target material are grouped
// under the empty key.
func (s *StatisticsService) ByMaterial(ctx context.Context) ([]MaterialStats, error) {
	recs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	type acc struct {
		stats    MaterialStats
		scoreSum float64
		scored   int
	}
	groups := map[string]*acc{}
	for i := range recs {
		rec := &recs[i]
		a, ok := groups[rec.TargetMaterial]
		if !ok {
			a = &acc{stats: MaterialStats{TargetMaterial: rec.TargetMaterial}}
			groups[rec.TargetMaterial] = a
		}
		a.stats.Total++
		if rec.Status != recommendation.StatusCompleted || rec.ExperimentResult == nil {
			continue
		}
		a.stats.Completed++
		score := rec.ExperimentResult.PerformanceScore()
		a.scoreSum += score
		a.scored++
		if score > a.stats.BestPerformance {
			a.stats.BestPerformance = score
		}
	}

	result := make([]MaterialStats, 0, len(groups))
	for _, a := range groups {
		if a.scored > 0 {
			a.stats.AveragePerformance = a.scoreSum / float64(a.scored)
		}
		result = append(result, a.stats)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AveragePerformance != result[j].AveragePerformance {
			return result[i].AveragePerformance > result[j].AveragePerformance
		}
		return result[i].TargetMaterial < result[j].TargetMaterial
	})
	return result, nil
}

// PerformanceTrend buckets completed feedback by experiment day over the
// last days days, oldest first.
func (s *StatisticsService) PerformanceTrend(ctx context.Context, days int) ([]TrendPoint, error) {
	if days < 1 {
		days = 30
	}
	recs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	type acc struct {
		count    int
		scoreSum float64
	}
	buckets := map[time.Time]*acc{}
	for i := range recs {
		rec := &recs[i]
		if rec.Status != recommendation.StatusCompleted || rec.ExperimentResult == nil {
			continue
		}
		day := rec.ExperimentResult.ExperimentDate.Truncate(24 * time.Hour)
		if day.Before(cutoff) {
			continue
		}
		a, ok := buckets[day]
		if !ok {
			a = &acc{}
			buckets[day] = a
		}
		a.count++
		a.scoreSum += rec.ExperimentResult.PerformanceScore()
	}

	trend := make([]TrendPoint, 0, len(buckets))
	for day, a := range buckets {
		trend = append(trend, TrendPoint{
			Day:                day,
			Completed:          a.count,
			AveragePerformance: a.scoreSum / float64(a.count),
		})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Day.Before(trend[j].Day) })
	return trend, nil
}

// TopFormulations returns the n best consolidated recommendations by
// performance score.
func (s *StatisticsService) TopFormulations(ctx context.Context, n int) ([]FormulationScore, error) {
	if n < 1 {
		n = 10
	}
	recs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var ranked []FormulationScore
	for i := range recs {
		rec := &recs[i]
		if rec.Status != recommendation.StatusCompleted || rec.ExperimentResult == nil {
			continue
		}
		ranked = append(ranked, FormulationScore{
			RecommendationID: rec.ID,
			TargetMaterial:   rec.TargetMaterial,
			Formulation:      rec.Formulation,
			PerformanceScore: rec.ExperimentResult.PerformanceScore(),
		})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].PerformanceScore > ranked[j].PerformanceScore })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}
