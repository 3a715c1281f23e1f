package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/config"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

const defaultPollInterval = 500 * time.Millisecond

// Pool processes one queue: it leases jobs up to its concurrency ceiling,
// dispatches them to registered handlers and settles each attempt with Ack
// or Nack. Retryability comes from domain error classification; the backoff
// delay from the job's policy.
type Pool struct {
	queueName string
	cfg       config.WorkerQueueConfig

	store     outbound.JobStore
	handlers  *HandlerRegistry
	backoffs  *CustomBackoffRegistry
	publisher outbound.EventPublisher
	metrics   *JobMetrics
	limiter   *RateLimiter

	pollInterval time.Duration
	running      atomic.Int64
	wg           sync.WaitGroup
}

// PoolDeps bundles the collaborators a pool needs.
type PoolDeps struct {
	Store     outbound.JobStore
	Handlers  *HandlerRegistry
	Backoffs  *CustomBackoffRegistry
	Publisher outbound.EventPublisher
	Metrics   *JobMetrics
}

// NewPool creates a pool for the queue. Concurrency below 1 is raised to 1.
func NewPool(queueName string, cfg config.WorkerQueueConfig, pollInterval time.Duration, deps PoolDeps) (*Pool, error) {
	if queueName == "" {
		return nil, fmt.Errorf("queue name cannot be empty")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("job store cannot be nil")
	}
	if deps.Handlers == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if deps.Backoffs == nil {
		deps.Backoffs = NewCustomBackoffRegistry()
	}

	return &Pool{
		queueName:    queueName,
		cfg:          cfg,
		store:        deps.Store,
		handlers:     deps.Handlers,
		backoffs:     deps.Backoffs,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		limiter:      NewRateLimiter(cfg.RateLimit.MaxJobs, cfg.RateLimit.Window),
		pollInterval: pollInterval,
	}, nil
}

// QueueName returns the queue this pool serves.
func (p *Pool) QueueName() string { return p.queueName }

// Status reports the pool's current load for the health endpoint.
func (p *Pool) Status() inbound.WorkerStatus {
	return inbound.WorkerStatus{
		QueueName:   p.queueName,
		Running:     int(p.running.Load()),
		Concurrency: p.cfg.Concurrency,
	}
}

// Run leases and processes jobs until the context is cancelled, then waits
// for in-flight jobs to settle.
func (p *Pool) Run(ctx context.Context) error {
	slogger.Info(ctx, "Worker pool starting", slogger.Fields{
		"queue":       p.queueName,
		"concurrency": p.cfg.Concurrency,
		"lease":       p.cfg.LeaseDuration.String(),
	})

	slots := make(chan struct{}, p.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			slogger.Info(context.Background(), "Worker pool stopped", slogger.Fields{
				"queue": p.queueName,
			})
			return ctx.Err()
		case slots <- struct{}{}:
		}

		if err := p.limiter.Acquire(ctx); err != nil {
			<-slots
			continue
		}

		leased, err := p.store.Lease(ctx, p.queueName, p.cfg.LeaseDuration)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				continue
			}
			slogger.ErrorWithError(ctx, err, "Failed to lease job", slogger.Fields{
				"queue": p.queueName,
			})
			p.idle(ctx)
			continue
		}
		if leased == nil {
			<-slots
			p.idle(ctx)
			continue
		}

		p.wg.Add(1)
		p.running.Add(1)
		go func(j job.Job) {
			defer func() {
				<-slots
				p.running.Add(-1)
				p.wg.Done()
			}()
			p.process(ctx, j)
		}(*leased)
	}
}

func (p *Pool) idle(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// process runs one attempt end to end.
func (p *Pool) process(ctx context.Context, j job.Job) {
	start := time.Now()
	p.emit(ctx, job.Event{
		JobID:     j.ID,
		QueueName: p.queueName,
		JobType:   j.Type,
		Phase:     job.PhaseLeased,
		Attempt:   j.AttemptsMade,
		Timestamp: start,
	})

	handler, ok := p.handlers.Get(j.Type)
	if !ok {
		reason := fmt.Sprintf("no handler registered for job type %q", j.Type)
		p.settleFailure(ctx, j, start, domain.NewConfiguration(reason, nil))
		return
	}

	report := func(reportCtx context.Context, percent int) error {
		return p.store.UpdateProgress(reportCtx, j.ID, percent)
	}

	result, err := handler.Handle(ctx, j, report)
	if err != nil {
		p.settleFailure(ctx, j, start, err)
		return
	}

	// Settle even when the run context was cancelled mid-drain; otherwise a
	// finished job would be re-queued by stall recovery.
	settleCtx := context.WithoutCancel(ctx)
	if ackErr := p.store.Ack(settleCtx, j.ID, result); ackErr != nil {
		// The lease may have expired mid-run; the stall recovery path will
		// re-queue the job, so this attempt's result is discarded.
		slogger.ErrorWithError(ctx, ackErr, "Failed to ack job", slogger.Fields{
			"queue":  p.queueName,
			"job_id": j.ID.String(),
		})
		return
	}

	p.emit(settleCtx, job.Event{
		JobID:     j.ID,
		QueueName: p.queueName,
		JobType:   j.Type,
		Phase:     job.PhaseCompleted,
		Attempt:   j.AttemptsMade,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
}

// settleFailure nacks the attempt. Retry happens only when the error is
// classified transient and attempts remain; everything else fails the job
// permanently with the reason retained.
func (p *Pool) settleFailure(ctx context.Context, j job.Job, start time.Time, handlerErr error) {
	// Cancellation during shutdown is not a verdict on the job itself.
	retryable := domain.IsRetryable(handlerErr) ||
		errors.Is(handlerErr, context.Canceled) ||
		errors.Is(handlerErr, context.DeadlineExceeded)
	willRetry := retryable && j.AttemptsRemaining() > 0

	var delay time.Duration
	if willRetry {
		delay = p.backoffs.Delay(j.Backoff, j.AttemptsMade)
	}

	settleCtx := context.WithoutCancel(ctx)
	if err := p.store.Nack(settleCtx, j.ID, handlerErr.Error(), retryable, delay); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to nack job", slogger.Fields{
			"queue":  p.queueName,
			"job_id": j.ID.String(),
		})
		return
	}

	event := job.Event{
		JobID:     j.ID,
		QueueName: p.queueName,
		JobType:   j.Type,
		Attempt:   j.AttemptsMade,
		Duration:  time.Since(start),
		Error:     handlerErr.Error(),
		Timestamp: time.Now(),
	}
	if willRetry {
		event.Phase = job.PhaseRetried
		event.NextDelay = delay
		slogger.Warn(ctx, "Job attempt failed, retrying", slogger.Fields{
			"queue":      p.queueName,
			"job_id":     j.ID.String(),
			"attempt":    j.AttemptsMade,
			"next_delay": delay.String(),
			"error":      handlerErr.Error(),
		})
	} else {
		event.Phase = job.PhaseFailed
		slogger.ErrorWithError(ctx, handlerErr, "Job failed permanently", slogger.Fields{
			"queue":   p.queueName,
			"job_id":  j.ID.String(),
			"attempt": j.AttemptsMade,
		})
	}
	p.emit(settleCtx, event)
}

// emit fans the event out to metrics and the publisher. Publisher errors
// are logged, never propagated into job processing.
func (p *Pool) emit(ctx context.Context, event job.Event) {
	p.metrics.RecordEvent(ctx, event)
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishJobEvent(ctx, event); err != nil {
		slogger.Warn(ctx, "Failed to publish job event", slogger.Fields{
			"queue":  event.QueueName,
			"job_id": event.JobID.String(),
			"phase":  string(event.Phase),
			"error":  err.Error(),
		})
	}
}
