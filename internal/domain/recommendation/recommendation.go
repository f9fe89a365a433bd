// Package recommendation defines the Recommendation domain entity: one
// proposed formulation plus its provenance and lifecycle status.
package recommendation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formulab/desbank/internal/domain/experiment"
)

// SchemaVersion tags newly created records. Version "1" records (no
// explicit feedback_processed_at field) are upgraded on read by the
// storage adapters.
const SchemaVersion = "2"

// Metadata keys written by the feedback engine.
const (
	MetaFeedbackProcessedAt  = "feedback_processed_at"
	MetaIsUpdated            = "is_updated"
	MetaDeletedMemoriesCount = "deleted_memories_count"
)

// Recommendation is one proposed formulation under lifecycle tracking.
// Trajectory is an opaque serialized derivation trace, owned exclusively
// by the recommendation once attached.
type Recommendation struct {
	ID               string             `json:"recommendation_id"`
	TaskID           string             `json:"task_id"`
	TargetMaterial   string             `json:"target_material,omitempty"`
	Formulation      map[string]any     `json:"formulation"`
	Reasoning        string             `json:"reasoning,omitempty"`
	Confidence       float64            `json:"confidence"`
	Trajectory       json.RawMessage    `json:"trajectory,omitempty"`
	Status           Status             `json:"status"`
	ExperimentResult *experiment.Result `json:"experiment_result,omitempty"`
	SchemaVersion    string             `json:"version"`
	Metadata         map[string]any     `json:"metadata,omitempty"`

	// FeedbackProcessedAt is set only by a successful feedback completion.
	// It is the single authoritative update marker; the metadata mirror
	// exists for interchange with version "1" instances.
	FeedbackProcessedAt *time.Time `json:"feedback_processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest is the input for registering a new recommendation from
// the upstream generator.
type CreateRequest struct {
	TaskID         string          `json:"task_id"`
	TargetMaterial string          `json:"target_material,omitempty"`
	Formulation    map[string]any  `json:"formulation"`
	Reasoning      string          `json:"reasoning,omitempty"`
	Confidence     float64         `json:"confidence"`
	Trajectory     json.RawMessage `json:"trajectory,omitempty"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if len(r.Formulation) == 0 {
		return fmt.Errorf("formulation is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	return nil
}

// New builds a Recommendation in GENERATING state from a create request.
func New(req CreateRequest) *Recommendation {
	now := time.Now()
	return &Recommendation{
		ID:             NewID(now, req.TaskID),
		TaskID:         req.TaskID,
		TargetMaterial: req.TargetMaterial,
		Formulation:    req.Formulation,
		Reasoning:      req.Reasoning,
		Confidence:     req.Confidence,
		Trajectory:     req.Trajectory,
		Status:         StatusGenerating,
		SchemaVersion:  SchemaVersion,
		Metadata:       map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewID builds a recommendation id in the interchange format
// REC_<YYYYMMDD>_<HHMMSS>_<task>_<suffix>. The uuid suffix disambiguates
// ids minted within the same second.
func NewID(at time.Time, taskID string) string {
	return fmt.Sprintf("REC_%s_%s_%s_%s",
		at.Format("20060102"), at.Format("150405"), taskID, uuid.NewString()[:8])
}

// HasProcessedFeedback reports whether a prior feedback submission
// completed successfully. A new submission against such a record is an
// update: previously derived memories are retracted first.
func (r *Recommendation) HasProcessedFeedback() bool {
	return r.FeedbackProcessedAt != nil && !r.FeedbackProcessedAt.IsZero()
}

// SetMeta writes a metadata key, allocating the map on first use.
func (r *Recommendation) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}
