// Package extractor defines the memory extractor port (interface).
package extractor

import (
	"context"
	"encoding/json"

	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/insight"
)

// Extractor is the collaborator that distills memory candidates from a
// recommendation's trajectory and its experimental outcome. It must be
// deterministic enough to be replay-safe; replay explicitly tolerates
// output drift across extractor versions.
type Extractor interface {
	// Extract returns candidate memory records. Failures should wrap
	// domain.ErrExtraction.
	Extract(ctx context.Context, trajectory json.RawMessage, result *experiment.Result) ([]insight.Candidate, error)
}
