package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "desbank"

// StartFeedbackSpan starts a span for a feedback consolidation job.
func StartFeedbackSpan(ctx context.Context, recommendationID, taskID string, isUpdate bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "feedback",
		trace.WithAttributes(
			attribute.String("recommendation.id", recommendationID),
			attribute.String("task.id", taskID),
			attribute.Bool("feedback.is_update", isUpdate),
		),
	)
}

// StartExtractionSpan starts a span for the insight extraction call.
func StartExtractionSpan(ctx context.Context, recommendationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "extraction",
		trace.WithAttributes(
			attribute.String("recommendation.id", recommendationID),
		),
	)
}

// StartReplaySpan starts a span for a bulk replay run.
func StartReplaySpan(ctx context.Context, sourceDir string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "replay",
		trace.WithAttributes(
			attribute.String("replay.source", sourceDir),
		),
	)
}
