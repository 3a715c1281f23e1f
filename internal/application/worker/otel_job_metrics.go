// Package worker runs the job-processing pools: leasing, dispatch, retry
// and backoff, stall recovery and retention sweeps. This file implements
// OpenTelemetry metrics for job lifecycle outcomes.
package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"commandcenter/internal/domain/job"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	JobDurationHistogramName = "worker_job_duration_seconds"
	JobCompletedCounterName  = "worker_job_completed_total"
	JobRetriedCounterName    = "worker_job_retried_total"
	JobFailedCounterName     = "worker_job_failed_total"
	JobStalledCounterName    = "worker_job_stalled_total"
	JobLeasedCounterName     = "worker_job_leased_total"
)

// Common attribute keys for consistent labeling.
const (
	AttrQueueName = "queue_name"
	AttrJobType   = "job_type"
	AttrAttempt   = "attempt"
)

// JobMetrics collects job lifecycle metrics via OpenTelemetry.
type JobMetrics struct {
	jobDuration    metric.Float64Histogram
	completedTotal metric.Int64Counter
	retriedTotal   metric.Int64Counter
	failedTotal    metric.Int64Counter
	stalledTotal   metric.Int64Counter
	leasedTotal    metric.Int64Counter
}

// NewJobMetrics creates the lifecycle instruments on the global meter
// provider.
func NewJobMetrics() (*JobMetrics, error) {
	meter := otel.Meter("commandcenter/worker", metric.WithInstrumentationVersion("1.0.0"))

	// Job handlers range from millisecond notifications to multi-minute
	// transcriptions.
	durationBuckets := []float64{
		0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
	}

	jobDuration, err := meter.Float64Histogram(
		JobDurationHistogramName,
		metric.WithDescription("Duration of job handler execution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	completedTotal, err := meter.Int64Counter(
		JobCompletedCounterName,
		metric.WithDescription("Total number of jobs completed successfully"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	retriedTotal, err := meter.Int64Counter(
		JobRetriedCounterName,
		metric.WithDescription("Total number of job attempts scheduled for retry"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	failedTotal, err := meter.Int64Counter(
		JobFailedCounterName,
		metric.WithDescription("Total number of jobs failed permanently"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	stalledTotal, err := meter.Int64Counter(
		JobStalledCounterName,
		metric.WithDescription("Total number of stalled jobs recovered"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	leasedTotal, err := meter.Int64Counter(
		JobLeasedCounterName,
		metric.WithDescription("Total number of jobs leased for execution"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &JobMetrics{
		jobDuration:    jobDuration,
		completedTotal: completedTotal,
		retriedTotal:   retriedTotal,
		failedTotal:    failedTotal,
		stalledTotal:   stalledTotal,
		leasedTotal:    leasedTotal,
	}, nil
}

// RecordEvent maps one lifecycle event to its instruments. Nil receivers
// are allowed so metrics stay optional in tests.
func (m *JobMetrics) RecordEvent(ctx context.Context, event job.Event) {
	if m == nil {
		return
	}

	attributes := []attribute.KeyValue{
		attribute.String(AttrQueueName, event.QueueName),
		attribute.String(AttrJobType, string(event.JobType)),
		attribute.Int(AttrAttempt, event.Attempt),
	}
	opt := metric.WithAttributes(attributes...)

	switch event.Phase {
	case job.PhaseLeased:
		m.leasedTotal.Add(ctx, 1, opt)
	case job.PhaseCompleted:
		m.completedTotal.Add(ctx, 1, opt)
		m.recordDuration(ctx, event.Duration, opt)
	case job.PhaseRetried:
		m.retriedTotal.Add(ctx, 1, opt)
		m.recordDuration(ctx, event.Duration, opt)
	case job.PhaseFailed:
		m.failedTotal.Add(ctx, 1, opt)
		m.recordDuration(ctx, event.Duration, opt)
	case job.PhaseStalled:
		m.stalledTotal.Add(ctx, 1, opt)
	}
}

func (m *JobMetrics) recordDuration(ctx context.Context, d time.Duration, opt metric.MeasurementOption) {
	if d > 0 {
		m.jobDuration.Record(ctx, d.Seconds(), opt)
	}
}
