// Package jobstatus defines the port for feedback job status records.
package jobstatus

import (
	"context"
	"time"
)

// State is the coarse state of a feedback processing job.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Result is the payload of a completed job.
type Result struct {
	PerformanceScore float64  `json:"performance_score"`
	Solubility       *float64 `json:"solubility,omitempty"`
	SolubilityUnit   string   `json:"solubility_unit,omitempty"`
	IsLiquidFormed   bool     `json:"is_liquid_formed"`
	MemoryTitles     []string `json:"memory_titles"`
	NumMemories      int      `json:"num_memories"`
	IsUpdate         bool     `json:"is_update"`
	DeletedMemories  int      `json:"deleted_memories"`
}

// Record is one job status entry, keyed by recommendation id. A new
// submission overwrites the previous record for that id.
type Record struct {
	RecommendationID string     `json:"recommendation_id"`
	State            State      `json:"state"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Result           *Result    `json:"result,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// Store is the port for job status lookups. Implementations may back it
// with process memory, a cache, or a distributed KV without changing the
// feedback processor.
type Store interface {
	// Put stores or replaces the record for its recommendation id.
	Put(ctx context.Context, rec *Record) error

	// Get returns the record or domain.ErrNotFound for ids never submitted.
	Get(ctx context.Context, recommendationID string) (*Record, error)

	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, recommendationID string) error
}
