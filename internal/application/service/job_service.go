package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/outbound"
)

// JobService is the enqueue-and-status surface the API layer consumes. It
// is a thin wrapper over the job store that adds logging and a compact
// status view.
type JobService struct {
	store outbound.JobStore
}

// NewJobService creates a new JobService instance.
func NewJobService(store outbound.JobStore) *JobService {
	if store == nil {
		panic("store cannot be nil")
	}
	return &JobService{store: store}
}

// Enqueue creates a job and returns its ID. Supplying opts.JobID makes the
// call idempotent.
func (s *JobService) Enqueue(
	ctx context.Context,
	queueName string,
	jobType job.Type,
	payload json.RawMessage,
	opts job.Options,
) (uuid.UUID, error) {
	id, err := s.store.Enqueue(ctx, queueName, jobType, payload, opts)
	if err != nil {
		return uuid.Nil, err
	}

	slogger.Info(ctx, "Job enqueued", slogger.Fields{
		"queue":    queueName,
		"job_type": string(jobType),
		"job_id":   id.String(),
		"priority": opts.Priority,
	})
	return id, nil
}

// JobStatus is the API-facing view of one job.
type JobStatus struct {
	ID            uuid.UUID       `json:"id"`
	QueueName     string          `json:"queue_name"`
	Type          job.Type        `json:"type"`
	State         job.State       `json:"state"`
	Progress      int             `json:"progress"`
	AttemptsMade  int             `json:"attempts_made"`
	MaxAttempts   int             `json:"max_attempts"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// Status returns the compact status view of a job.
func (s *JobService) Status(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &JobStatus{
		ID:            j.ID,
		QueueName:     j.QueueName,
		Type:          j.Type,
		State:         j.State,
		Progress:      j.Progress,
		AttemptsMade:  j.AttemptsMade,
		MaxAttempts:   j.MaxAttempts,
		Result:        j.Result,
		FailureReason: j.FailureReason,
	}, nil
}

// State returns just the lifecycle state of a job.
func (s *JobService) State(ctx context.Context, jobID uuid.UUID) (job.State, error) {
	return s.store.GetState(ctx, jobID)
}
