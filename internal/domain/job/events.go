package job

import (
	"time"

	"github.com/google/uuid"
)

// EventPhase names the outcome of one lease-and-run cycle.
type EventPhase string

// Event phase constants.
const (
	PhaseLeased    EventPhase = "leased"
	PhaseCompleted EventPhase = "completed"
	PhaseRetried   EventPhase = "retried"
	PhaseFailed    EventPhase = "failed"
	PhaseStalled   EventPhase = "stalled"
)

// Event is the structured record of a job lifecycle transition, emitted by
// the worker pool after each lease-and-run cycle and fed to the metrics and
// logging sinks by explicit calls. It replaces callback-style listeners so
// ordering and error visibility stay explicit.
type Event struct {
	JobID     uuid.UUID     `json:"job_id"`
	QueueName string        `json:"queue_name"`
	JobType   Type          `json:"job_type"`
	Phase     EventPhase    `json:"phase"`
	Attempt   int           `json:"attempt"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	NextDelay time.Duration `json:"next_delay,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
