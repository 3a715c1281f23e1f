package outbound

import (
	"context"
	"encoding/json"
	"time"

	"commandcenter/internal/domain/job"

	"github.com/google/uuid"
)

// JobStore is the durable, atomic, priority-then-FIFO store that owns every
// job record. Workers never mutate job state directly; all mutation goes
// through these operations.
//
// The store guarantees at-least-once execution: a leased job whose lease
// expires without Ack or Nack becomes re-leasable (a stall).
type JobStore interface {
	// Enqueue creates a job in the waiting state. When opts.JobID is set and
	// a job with that ID already exists, the call is an idempotent no-op
	// returning the existing ID.
	Enqueue(
		ctx context.Context,
		queueName string,
		jobType job.Type,
		payload json.RawMessage,
		opts job.Options,
	) (uuid.UUID, error)

	// Lease atomically claims the highest-priority, oldest waiting job of the
	// queue, marks it active and makes it invisible to other leasers until
	// the lease expires. Returns (nil, nil) when no job is available.
	Lease(ctx context.Context, queueName string, leaseDuration time.Duration) (*job.Job, error)

	// Ack marks a leased job completed and records its result. Retention
	// policy applies from this point.
	Ack(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error

	// Nack records a failure. If retryable and attempts remain, the job is
	// re-queued after the given delay; otherwise it is failed permanently
	// with the reason retained for diagnosis.
	Nack(ctx context.Context, jobID uuid.UUID, reason string, retryable bool, delay time.Duration) error

	// UpdateProgress records advisory progress (0-100) and extends the
	// active lease by the job's original lease duration.
	UpdateProgress(ctx context.Context, jobID uuid.UUID, percent int) error

	// GetState returns the lifecycle state of a job.
	GetState(ctx context.Context, jobID uuid.UUID) (job.State, error)

	// GetJob returns the full job record.
	GetJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error)

	// RecoverStalled re-queues every active job of the queue whose lease has
	// expired and returns their IDs so the caller can raise stall events.
	RecoverStalled(ctx context.Context, queueName string) ([]uuid.UUID, error)

	// Counts returns per-state job counts for the queue's health endpoint.
	Counts(ctx context.Context, queueName string) (QueueCounts, error)

	// ApplyRetention evicts terminal jobs past the queue's age and count
	// bounds and returns how many were removed.
	ApplyRetention(ctx context.Context, def job.QueueDefinition) (int, error)
}

// QueueCounts holds per-state job counts for one queue.
type QueueCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// EventPublisher delivers job lifecycle events to external observers.
type EventPublisher interface {
	// PublishJobEvent publishes one lifecycle event. Implementations must not
	// block job processing on slow subscribers.
	PublishJobEvent(ctx context.Context, event job.Event) error

	// Close releases the underlying connection.
	Close() error
}
