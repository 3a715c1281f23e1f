// Package job provides the domain types for asynchronous jobs: the job
// record itself, its state machine, per-queue definitions and backoff
// policies. The job store owns every Job; workers only ever hold a
// time-limited lease.
package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the handler a job is dispatched to.
type Type string

// Job type constants.
const (
	TypeTranscription Type = "transcription"
	TypeEmbedding     Type = "embedding"
	TypeNotification  Type = "notification"
	TypeSync          Type = "sync"
)

// State represents the lifecycle state of a job.
type State string

// Job state constants.
const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// validStates contains all valid job states.
var validStates = map[State]bool{
	StateWaiting:   true,
	StateActive:    true,
	StateDelayed:   true,
	StateCompleted: true,
	StateFailed:    true,
}

// NewState creates a State with validation.
func NewState(state string) (State, error) {
	s := State(state)
	if !validStates[s] {
		return "", fmt.Errorf("invalid job state: %s", state)
	}
	return s, nil
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if this state represents a final state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo returns true if the state can transition to the target state.
func (s State) CanTransitionTo(target State) bool {
	transitions := map[State][]State{
		StateWaiting: {StateActive},
		StateActive:  {StateCompleted, StateFailed, StateDelayed, StateWaiting},
		StateDelayed: {StateWaiting},
		// Terminal states cannot transition.
		StateCompleted: {},
		StateFailed:    {},
	}

	for _, valid := range transitions[s] {
		if target == valid {
			return true
		}
	}
	return false
}

// Job is a unit of asynchronous work persisted in the job store.
//
// State mutations happen only through the store's atomic operations:
// enqueue creates it, lease marks it active and sets LeasedUntil, ack
// completes it, nack fails or re-queues it. Retention policy eventually
// destroys terminal jobs.
type Job struct {
	ID            uuid.UUID       `json:"id"`
	QueueName     string          `json:"queue_name"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Priority      int             `json:"priority"`
	AttemptsMade  int             `json:"attempts_made"`
	MaxAttempts   int             `json:"max_attempts"`
	Backoff       BackoffPolicy   `json:"backoff"`
	State         State           `json:"state"`
	Progress      int             `json:"progress"` // 0-100, advisory
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	LeasedUntil   *time.Time      `json:"leased_until,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Options configures an enqueue call. The zero value takes the queue
// definition's defaults.
type Options struct {
	// Priority orders jobs within a queue; higher services first.
	Priority int
	// MaxAttempts overrides the queue's default retry count when positive.
	MaxAttempts int
	// Backoff overrides the queue's backoff policy when non-zero.
	Backoff *BackoffPolicy
	// JobID makes the enqueue idempotent: a second enqueue with the same ID
	// is a no-op.
	JobID uuid.UUID
}

// Validate checks the job's invariants.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return fmt.Errorf("job id cannot be nil")
	}
	if j.QueueName == "" {
		return fmt.Errorf("queue name is required")
	}
	if j.Type == "" {
		return fmt.Errorf("job type is required")
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("progress must be between 0 and 100")
	}
	if !validStates[j.State] {
		return fmt.Errorf("invalid job state: %s", j.State)
	}
	return nil
}

// AttemptsRemaining returns how many more leases the job may receive.
func (j *Job) AttemptsRemaining() int {
	remaining := j.MaxAttempts - j.AttemptsMade
	if remaining < 0 {
		return 0
	}
	return remaining
}
