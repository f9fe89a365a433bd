package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/recommendation"
	"github.com/formulab/desbank/internal/port/database"
)

const recommendationColumns = `id, task_id, target_material, formulation, reasoning, confidence,
	trajectory, status, experiment_result, schema_version, metadata,
	feedback_processed_at, created_at, updated_at`

// SaveRecommendation inserts the recommendation, or replaces it wholesale if the id exists.
func (s *Store) SaveRecommendation(ctx context.Context, rec *recommendation.Recommendation) error {
	const q = `
		INSERT INTO recommendations (id, task_id, target_material, formulation, reasoning, confidence,
			trajectory, status, experiment_result, schema_version, metadata,
			feedback_processed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			task_id = EXCLUDED.task_id,
			target_material = EXCLUDED.target_material,
			formulation = EXCLUDED.formulation,
			reasoning = EXCLUDED.reasoning,
			confidence = EXCLUDED.confidence,
			trajectory = EXCLUDED.trajectory,
			status = EXCLUDED.status,
			experiment_result = EXCLUDED.experiment_result,
			schema_version = EXCLUDED.schema_version,
			metadata = EXCLUDED.metadata,
			feedback_processed_at = EXCLUDED.feedback_processed_at,
			updated_at = EXCLUDED.updated_at`

	formulation, err := marshalOrEmpty(rec.Formulation)
	if err != nil {
		return fmt.Errorf("marshal formulation: %w", err)
	}
	metadata, err := marshalOrEmpty(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var result json.RawMessage
	if rec.ExperimentResult != nil {
		result, err = json.Marshal(rec.ExperimentResult)
		if err != nil {
			return fmt.Errorf("marshal experiment result: %w", err)
		}
	}

	var trajectory any
	if len(rec.Trajectory) > 0 {
		trajectory = rec.Trajectory
	}

	_, err = s.pool.Exec(ctx, q,
		rec.ID, rec.TaskID, rec.TargetMaterial, formulation, rec.Reasoning, rec.Confidence,
		trajectory, string(rec.Status), result, rec.SchemaVersion, metadata,
		rec.FeedbackProcessedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save recommendation %s: %w", rec.ID, err)
	}
	return nil
}

// GetRecommendation returns the recommendation or domain.ErrNotFound.
func (s *Store) GetRecommendation(ctx context.Context, id string) (*recommendation.Recommendation, error) {
	q := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE id = $1`

	rec, err := scanRecommendation(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, wrapNoRows(err, "get recommendation %s", id)
	}
	return rec, nil
}

// ListRecommendations returns matching recommendations ordered by created_at descending,
// plus the total count before pagination.
func (s *Store) ListRecommendations(ctx context.Context, filter database.RecommendationFilter) ([]recommendation.Recommendation, int, error) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TargetMaterial != "" {
		args = append(args, filter.TargetMaterial)
		conds = append(conds, fmt.Sprintf("target_material = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM recommendations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recommendations: %w", err)
	}

	q := `SELECT ` + recommendationColumns + ` FROM recommendations` + where + ` ORDER BY created_at DESC`
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
		return nil, 0, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var result []recommendation.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan recommendation: %w", err)
		}
		result = append(result, *rec)
	}
	return result, total, rows.Err()
}

// UpdateRecommendationStatus sets the status and bumps updated_at.
func (s *Store) UpdateRecommendationStatus(ctx context.Context, id string, status recommendation.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id)
	return expectOneRow(tag, err, "update status of recommendation %s", id)
}

// AttachFeedback stores the experiment result on the recommendation.
func (s *Store) AttachFeedback(ctx context.Context, id string, result *experiment.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal experiment result: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET experiment_result = $1, updated_at = now() WHERE id = $2`,
		data, id)
	return expectOneRow(tag, err, "attach feedback to recommendation %s", id)
}

// scanRecommendation reads one row into a Recommendation. Version "1"
// rows carry their feedback marker only in metadata; the marker is lifted
// into the explicit column representation on read.
func scanRecommendation(row rowScanner) (*recommendation.Recommendation, error) {
	var rec recommendation.Recommendation
	var formulation, metadata []byte
	var trajectory, result []byte
	var status string

	if err := row.Scan(
		&rec.ID, &rec.TaskID, &rec.TargetMaterial, &formulation, &rec.Reasoning, &rec.Confidence,
		&trajectory, &status, &result, &rec.SchemaVersion, &metadata,
		&rec.FeedbackProcessedAt, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = recommendation.Status(status)
	if len(formulation) > 0 {
		if err := json.Unmarshal(formulation, &rec.Formulation); err != nil {
			return nil, fmt.Errorf("unmarshal formulation: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(trajectory) > 0 {
		rec.Trajectory = json.RawMessage(trajectory)
	}
	if len(result) > 0 {
		var er experiment.Result
		if err := json.Unmarshal(result, &er); err != nil {
			return nil, fmt.Errorf("unmarshal experiment result: %w", err)
		}
		rec.ExperimentResult = &er
	}
	upgradeRecommendation(&rec)
	return &rec, nil
}

// upgradeRecommendation migrates a version "1" record in memory: the
// metadata feedback_processed_at string becomes the explicit field.
func upgradeRecommendation(rec *recommendation.Recommendation) {
	if rec.SchemaVersion == recommendation.SchemaVersion {
		return
	}
	if rec.FeedbackProcessedAt == nil {
		if raw, ok := rec.Metadata[recommendation.MetaFeedbackProcessedAt].(string); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				rec.FeedbackProcessedAt = &ts
			}
		}
	}
	rec.SchemaVersion = recommendation.SchemaVersion
}
