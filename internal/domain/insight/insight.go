// Package insight provides the domain model for distilled memory records
// derived from experimental feedback.
package insight

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source categorizes how an insight was derived.
type Source string

const (
	// SourceExperimentValidated marks insights extracted from a live
	// feedback submission.
	SourceExperimentValidated Source = "experiment_validated"

	// SourceHistoricalExperiment marks insights replayed from a foreign
	// instance's historical records.
	SourceHistoricalExperiment Source = "historical_experiment"

	// SourceOther marks insights recorded outside the feedback pipeline.
	SourceOther Source = "other"
)

// ValidSources lists all valid insight sources.
var ValidSources = []Source{SourceExperimentValidated, SourceHistoricalExperiment, SourceOther}

// Insight is a distilled, reusable record. Its lifetime is independent of
// the originating recommendation; OriginRecommendationID exists only for
// lookup and retraction.
type Insight struct {
	ID                     string    `json:"id"`
	Title                  string    `json:"title"`
	Description            string    `json:"description,omitempty"`
	Content                string    `json:"content"`
	Source                 Source    `json:"source"`
	OriginRecommendationID string    `json:"origin_recommendation_id,omitempty"`
	PerformanceScore       float64   `json:"performance_score"`
	TaskID                 string    `json:"task_id,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// Validate checks that an Insight has all required fields.
func (i *Insight) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if i.Content == "" {
		return fmt.Errorf("content is required")
	}
	valid := false
	for _, s := range ValidSources {
		if i.Source == s {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid source %q", i.Source)
	}
	if i.PerformanceScore < 0 || i.PerformanceScore > 10 {
		return fmt.Errorf("performance_score must be between 0 and 10")
	}
	return nil
}

// Candidate is the narrow boundary type for extractor output. Free-form
// extractor records are converted to Candidates and normalized on receipt;
// opaque maps never travel deeper into the pipeline.
type Candidate struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
}

// Usable reports whether the candidate carries enough substance to keep.
// Titleless or contentless candidates are dropped, not errors.
func (c Candidate) Usable() bool {
	return strings.TrimSpace(c.Title) != "" && strings.TrimSpace(c.Content) != ""
}

// FromCandidate materializes an Insight from an extractor candidate,
// tagging it with its provenance and the performance score snapshot.
func FromCandidate(c Candidate, source Source, originID, taskID string, score float64) *Insight {
	return &Insight{
		ID:                     uuid.NewString(),
		Title:                  strings.TrimSpace(c.Title),
		Description:            strings.TrimSpace(c.Description),
		Content:                strings.TrimSpace(c.Content),
		Source:                 source,
		OriginRecommendationID: originID,
		PerformanceScore:       score,
		TaskID:                 taskID,
		CreatedAt:              time.Now(),
	}
}
