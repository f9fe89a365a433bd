// Package messagequeue defines the port for lifecycle event publishing.
package messagequeue

import "context"

// Handler consumes one delivered message. A non-nil error asks the
// queue to redeliver.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue publishes recommendation lifecycle events and lets external
// consumers subscribe to them.
type Queue interface {
	// Publish sends data on subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers handler for subject. The returned function
	// cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain flushes pending messages before closing.
	Drain() error

	// Close tears the connection down immediately.
	Close() error

	// IsConnected reports whether the connection is up.
	IsConnected() bool
}

// Subject constants for recommendation lifecycle events. Downstream
// consumers (UI, notification, analytics) subscribe to these; the engine
// only publishes.
const (
	SubjectFeedbackAccepted        = "feedback.accepted"
	SubjectFeedbackCompleted       = "feedback.completed"
	SubjectFeedbackFailed          = "feedback.failed"
	SubjectRecommendationCreated   = "recommendations.created"
	SubjectRecommendationCancelled = "recommendations.cancelled"
)
