package inbound

import (
	"context"
	"encoding/json"

	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/outbound"
)

// ProgressFunc reports advisory job progress (0-100). It never gates state
// transitions; handlers call it when they have something meaningful to say.
type ProgressFunc func(ctx context.Context, percent int) error

// JobHandler executes one job type. Handlers are pure functions over the
// payload: they perform work through external adapters, return a structured
// result, and classify failures with domain error kinds. The worker pool,
// not the handler, decides retryability.
type JobHandler interface {
	// Type names the job type this handler serves.
	Type() job.Type

	// Handle runs the job and returns its structured result.
	Handle(ctx context.Context, j job.Job, report ProgressFunc) (json.RawMessage, error)
}

// WorkerStatus describes one pool for the health endpoint.
type WorkerStatus struct {
	QueueName   string `json:"queue_name"`
	Running     int    `json:"running"`
	Concurrency int    `json:"concurrency"`
}

// QueueHealth combines store counts with worker status for one queue.
type QueueHealth struct {
	QueueName string               `json:"queue_name"`
	Counts    outbound.QueueCounts `json:"counts"`
	Worker    WorkerStatus         `json:"worker"`
}

// WorkerService is the lifecycle surface the CLI drives: start all pools,
// stop them gracefully, report health.
type WorkerService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) ([]QueueHealth, error)
}
