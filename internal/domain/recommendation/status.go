package recommendation

import "fmt"

// Status represents the lifecycle state of a recommendation.
type Status string

const (
	StatusGenerating Status = "GENERATING"
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
)

// validStatuses enumerates all valid statuses.
var validStatuses = map[Status]bool{
	StatusGenerating: true,
	StatusPending:    true,
	StatusProcessing: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
	StatusFailed:     true,
}

// transitions is the lifecycle state machine. COMPLETED is not terminal:
// a re-submitted feedback moves it back to PROCESSING as an update.
// FAILED accepts a fresh submission (not treated as an update).
// CANCELLED accepts nothing.
var transitions = map[Status][]Status{
	StatusGenerating: {StatusPending, StatusFailed},
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusProcessing},
	StatusFailed:     {StatusProcessing},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return validStatuses[s] }

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// AcceptsFeedback reports whether a feedback submission is admissible in
// status s. PROCESSING is included here; the duplicate-submission case is
// rejected separately by the in-flight guard with a conflict error.
func (s Status) AcceptsFeedback() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}
