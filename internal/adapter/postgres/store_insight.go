package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/port/database"
)

const insightColumns = `id, title, description, content, source, origin_rec_id, performance_score, task_id, created_at`

// InsertInsight stores a new insight.
func (s *Store) InsertInsight(ctx context.Context, in *insight.Insight) error {
	const q = `
		INSERT INTO insights (id, title, description, content, source, origin_rec_id, performance_score, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		in.ID, in.Title, in.Description, in.Content, string(in.Source),
		in.OriginRecommendationID, in.PerformanceScore, in.TaskID, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert insight %s: %w", in.ID, err)
	}
	return nil
}

// DeleteInsightsByOrigin removes all insights derived from the given recommendation
// and returns the number removed.
func (s *Store) DeleteInsightsByOrigin(ctx context.Context, recommendationID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM insights WHERE origin_rec_id = $1`, recommendationID)
	if err != nil {
		return 0, fmt.Errorf("delete insights for %s: %w", recommendationID, err)
	}
	return int(tag.RowsAffected()), nil
}

// ListInsightsByOrigin returns all insights derived from the recommendation.
func (s *Store) ListInsightsByOrigin(ctx context.Context, recommendationID string) ([]insight.Insight, error) {
	q := `SELECT ` + insightColumns + ` FROM insights WHERE origin_rec_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("list insights for %s: %w", recommendationID, err)
	}
	defer rows.Close()

	var result []insight.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		result = append(result, *in)
	}
	return result, rows.Err()
}

// ListInsights returns matching insights ordered by created_at descending, plus
// the total count before pagination.
func (s *Store) ListInsights(ctx context.Context, filter database.InsightFilter) ([]insight.Insight, int, error) {
	var conds []string
	var args []any
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.OriginID != "" {
		args = append(args, filter.OriginID)
		conds = append(conds, fmt.Sprintf("origin_rec_id = $%d", len(args)))
	}
	if filter.TaskID != "" {
		args = append(args, filter.TaskID)
		conds = append(conds, fmt.Sprintf("task_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM insights"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count insights: %w", err)
	}

	q := `SELECT ` + insightColumns + ` FROM insights` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var result []insight.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan insight: %w", err)
		}
		result = append(result, *in)
	}
	return result, total, rows.Err()
}

func scanInsight(row rowScanner) (*insight.Insight, error) {
	var in insight.Insight
	var source string
	if err := row.Scan(
		&in.ID, &in.Title, &in.Description, &in.Content, &source,
		&in.OriginRecommendationID, &in.PerformanceScore, &in.TaskID, &in.CreatedAt,
	); err != nil {
		return nil, err
	}
	in.Source = insight.Source(source)
	return &in, nil
}
