// Package experiment defines the Result domain entity for a single
// real-world experimental observation.
package experiment

import (
	"fmt"
	"time"

	"github.com/formulab/desbank/internal/domain"
)

// DefaultSolubilityUnit is used when the caller does not specify a unit.
const DefaultSolubilityUnit = "g/L"

// NeutralScore is the performance score assumed when a liquid formed but
// no solubility was measured.
const NeutralScore = 5.0

// MaxScore caps the performance score.
const MaxScore = 10.0

// Result records one experimental observation for a recommendation.
// Solubility is a pointer: nil means "not measured", which is distinct
// from a measured zero.
type Result struct {
	IsLiquidFormed bool           `json:"is_liquid_formed"`
	Solubility     *float64       `json:"solubility,omitempty"`
	SolubilityUnit string         `json:"solubility_unit,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
	Experimenter   string         `json:"experimenter,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	ExperimentDate time.Time      `json:"experiment_date"`
}

// New builds a validated, normalized Result.
// Callers that already hold a Result literal may call Normalize instead.
func New(isLiquidFormed bool, solubility *float64) (*Result, error) {
	r := &Result{
		IsLiquidFormed: isLiquidFormed,
		Solubility:     solubility,
	}
	if err := r.Normalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// Normalize applies defaults and the construction invariants in place:
//
//   - liquid formed with no solubility is a validation error
//   - solubility reported without a formed liquid is silently nulled
//     (caller mistake, normalized rather than rejected)
//   - negative solubility is a validation error
//
// A zero ExperimentDate is set to the current time.
func (r *Result) Normalize() error {
	if r.IsLiquidFormed && r.Solubility == nil {
		return fmt.Errorf("solubility is required when is_liquid_formed=true: %w", domain.ErrValidation)
	}
	if !r.IsLiquidFormed && r.Solubility != nil {
		r.Solubility = nil
	}
	if r.Solubility != nil && *r.Solubility < 0 {
		return fmt.Errorf("solubility cannot be negative: %w", domain.ErrValidation)
	}
	if r.SolubilityUnit == "" {
		r.SolubilityUnit = DefaultSolubilityUnit
	}
	if r.ExperimentDate.IsZero() {
		r.ExperimentDate = time.Now()
	}
	return nil
}

// HighSolubility reports whether the measured solubility is suspiciously
// high. Such results are accepted; callers log a warning.
func (r *Result) HighSolubility() bool {
	return r.Solubility != nil && *r.Solubility > 1000
}

// PerformanceScore derives the normalized 0-10 success scalar.
// It is a pure function of the record and is never stored as ground truth.
func (r *Result) PerformanceScore() float64 {
	if !r.IsLiquidFormed {
		return 0
	}
	if r.Solubility == nil {
		return NeutralScore
	}
	if *r.Solubility > MaxScore {
		return MaxScore
	}
	return *r.Solubility
}
