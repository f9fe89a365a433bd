package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "desbank"

// Metrics holds all feedback engine metric instruments.
type Metrics struct {
	JobsStarted        metric.Int64Counter
	JobsCompleted      metric.Int64Counter
	JobsFailed         metric.Int64Counter
	JobsConflicted     metric.Int64Counter
	MemoriesExtracted  metric.Int64Counter
	MemoriesRetracted  metric.Int64Counter
	JobDuration        metric.Float64Histogram
	ExtractionDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.JobsStarted, err = meter.Int64Counter("desbank.feedback.jobs.started",
		metric.WithDescription("Number of feedback jobs started"))
	if err != nil {
		return nil, err
	}

	m.JobsCompleted, err = meter.Int64Counter("desbank.feedback.jobs.completed",
		metric.WithDescription("Number of feedback jobs completed"))
	if err != nil {
		return nil, err
	}

	m.JobsFailed, err = meter.Int64Counter("desbank.feedback.jobs.failed",
		metric.WithDescription("Number of feedback jobs failed"))
	if err != nil {
		return nil, err
	}

	m.JobsConflicted, err = meter.Int64Counter("desbank.feedback.jobs.conflicted",
		metric.WithDescription("Number of submissions rejected while a job was in flight"))
	if err != nil {
		return nil, err
	}

	m.MemoriesExtracted, err = meter.Int64Counter("desbank.memories.extracted",
		metric.WithDescription("Number of memory records extracted"))
	if err != nil {
		return nil, err
	}

	m.MemoriesRetracted, err = meter.Int64Counter("desbank.memories.retracted",
		metric.WithDescription("Number of memory records retracted on update"))
	if err != nil {
		return nil, err
	}

	m.JobDuration, err = meter.Float64Histogram("desbank.feedback.job.duration_seconds",
		metric.WithDescription("Feedback job duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ExtractionDuration, err = meter.Float64Histogram("desbank.extraction.duration_seconds",
		metric.WithDescription("Insight extraction call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
