// Package jobstore provides the job store implementations: a Postgres-backed
// store for production and an in-memory store for tests and development.
// Both honor the same contract: atomic lease semantics, priority-then-FIFO
// ordering, backoff-delayed retries, stall recovery and retention.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/outbound"

	"github.com/google/uuid"
)

// storedJob wraps a job record with bookkeeping the contract keeps private:
// when a delayed job becomes leasable again and how long its lease runs.
type storedJob struct {
	job           *job.Job
	readyAt       time.Time
	leaseDuration time.Duration
	sequence      uint64
}

// MemoryJobStore is an in-memory JobStore for testing and development.
// All operations are guarded by a single mutex, giving the same atomicity
// the Postgres store gets from row locks.
type MemoryJobStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*storedJob
	definitions map[string]job.QueueDefinition
	sequence    uint64
	now         func() time.Time
}

// NewMemoryJobStore creates an in-memory store over the given queue
// definitions.
func NewMemoryJobStore(definitions []job.QueueDefinition) *MemoryJobStore {
	defs := make(map[string]job.QueueDefinition, len(definitions))
	for _, def := range definitions {
		defs[def.Name] = def
	}
	return &MemoryJobStore{
		jobs:        make(map[uuid.UUID]*storedJob),
		definitions: defs,
		now:         time.Now,
	}
}

// SetClock replaces the store's time source (useful for retention and stall
// tests).
func (s *MemoryJobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Enqueue creates a job in the waiting state.
func (s *MemoryJobStore) Enqueue(
	_ context.Context,
	queueName string,
	jobType job.Type,
	payload json.RawMessage,
	opts job.Options,
) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.definitions[queueName]
	if !ok {
		return uuid.Nil, fmt.Errorf("enqueue on %q: %w", queueName, domain.ErrQueueNotFound)
	}

	if opts.JobID != uuid.Nil {
		if _, exists := s.jobs[opts.JobID]; exists {
			return opts.JobID, nil
		}
	}

	id := opts.JobID
	if id == uuid.Nil {
		id = uuid.New()
	}

	maxAttempts := def.DefaultRetries
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}
	backoff := def.Backoff
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}
	priority := def.DefaultPriority
	if opts.Priority != 0 {
		priority = opts.Priority
	}

	j := &job.Job{
		ID:          id,
		QueueName:   queueName,
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		State:       job.StateWaiting,
		CreatedAt:   s.now(),
	}
	if err := j.Validate(); err != nil {
		return uuid.Nil, err
	}

	s.sequence++
	s.jobs[id] = &storedJob{job: j, sequence: s.sequence}
	return id, nil
}

// Lease claims the best waiting job of the queue: highest priority first,
// then FIFO by enqueue order.
func (s *MemoryJobStore) Lease(
	_ context.Context,
	queueName string,
	leaseDuration time.Duration,
) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.promoteDelayedLocked(queueName, now)

	var best *storedJob
	for _, sj := range s.jobs {
		if sj.job.QueueName != queueName || sj.job.State != job.StateWaiting {
			continue
		}
		if best == nil || leaseBefore(sj, best) {
			best = sj
		}
	}
	if best == nil {
		return nil, nil
	}

	leasedUntil := now.Add(leaseDuration)
	best.job.State = job.StateActive
	best.job.AttemptsMade++
	best.job.LeasedUntil = &leasedUntil
	best.leaseDuration = leaseDuration

	copied := *best.job
	return &copied, nil
}

// leaseBefore reports whether a should be leased before b.
func leaseBefore(a, b *storedJob) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	return a.sequence < b.sequence
}

// promoteDelayedLocked moves delayed jobs whose backoff has elapsed back to
// waiting. Caller holds the mutex.
func (s *MemoryJobStore) promoteDelayedLocked(queueName string, now time.Time) {
	for _, sj := range s.jobs {
		if sj.job.QueueName == queueName && sj.job.State == job.StateDelayed && !now.Before(sj.readyAt) {
			sj.job.State = job.StateWaiting
		}
	}
}

// Ack marks a leased job completed.
func (s *MemoryJobStore) Ack(_ context.Context, jobID uuid.UUID, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if sj.job.State != job.StateActive {
		return fmt.Errorf("ack job %s in state %s: only active jobs can be acked", jobID, sj.job.State)
	}

	now := s.now()
	sj.job.State = job.StateCompleted
	sj.job.Result = result
	sj.job.Progress = 100
	sj.job.LeasedUntil = nil
	sj.job.CompletedAt = &now
	return nil
}

// Nack records a failure, re-queuing after the delay when retryable and
// attempts remain, otherwise failing the job permanently.
func (s *MemoryJobStore) Nack(
	_ context.Context,
	jobID uuid.UUID,
	reason string,
	retryable bool,
	delay time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if sj.job.State != job.StateActive {
		return fmt.Errorf("nack job %s in state %s: only active jobs can be nacked", jobID, sj.job.State)
	}

	now := s.now()
	sj.job.FailureReason = reason
	sj.job.LeasedUntil = nil

	if retryable && sj.job.AttemptsMade < sj.job.MaxAttempts {
		sj.job.State = job.StateDelayed
		sj.readyAt = now.Add(delay)
		return nil
	}

	sj.job.State = job.StateFailed
	sj.job.CompletedAt = &now
	return nil
}

// UpdateProgress records advisory progress and extends the active lease.
func (s *MemoryJobStore) UpdateProgress(_ context.Context, jobID uuid.UUID, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("progress must be between 0 and 100, got %d: %w", percent, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if sj.job.State != job.StateActive {
		return fmt.Errorf("progress update for job %s in state %s", jobID, sj.job.State)
	}

	sj.job.Progress = percent
	if sj.leaseDuration > 0 {
		extended := s.now().Add(sj.leaseDuration)
		sj.job.LeasedUntil = &extended
	}
	return nil
}

// GetState returns the lifecycle state of a job.
func (s *MemoryJobStore) GetState(_ context.Context, jobID uuid.UUID) (job.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobID]
	if !ok {
		return "", domain.ErrJobNotFound
	}
	return sj.job.State, nil
}

// GetJob returns a copy of the full job record.
func (s *MemoryJobStore) GetJob(_ context.Context, jobID uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *sj.job
	return &copied, nil
}

// RecoverStalled re-queues active jobs whose lease has expired. Attempts are
// not incremented here; the next lease does that.
func (s *MemoryJobStore) RecoverStalled(_ context.Context, queueName string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var stalled []uuid.UUID
	for id, sj := range s.jobs {
		if sj.job.QueueName != queueName || sj.job.State != job.StateActive {
			continue
		}
		if sj.job.LeasedUntil != nil && now.After(*sj.job.LeasedUntil) {
			sj.job.State = job.StateWaiting
			sj.job.LeasedUntil = nil
			stalled = append(stalled, id)
		}
	}
	return stalled, nil
}

// Counts returns per-state job counts for the queue.
func (s *MemoryJobStore) Counts(_ context.Context, queueName string) (outbound.QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts outbound.QueueCounts
	for _, sj := range s.jobs {
		if sj.job.QueueName != queueName {
			continue
		}
		switch sj.job.State {
		case job.StateWaiting:
			counts.Waiting++
		case job.StateActive:
			counts.Active++
		case job.StateDelayed:
			counts.Delayed++
		case job.StateCompleted:
			counts.Completed++
		case job.StateFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// ApplyRetention evicts terminal jobs past the queue's age and count bounds.
// Failed jobs have their own, far longer window.
func (s *MemoryJobStore) ApplyRetention(_ context.Context, def job.QueueDefinition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	removed += s.applyWindowLocked(def.Name, job.StateCompleted, def.Retention.Completed)
	removed += s.applyWindowLocked(def.Name, job.StateFailed, def.Retention.Failed)
	return removed, nil
}

func (s *MemoryJobStore) applyWindowLocked(queueName string, state job.State, window job.RetentionWindow) int {
	now := s.now()

	var candidates []*storedJob
	for _, sj := range s.jobs {
		if sj.job.QueueName != queueName || sj.job.State != state {
			continue
		}
		candidates = append(candidates, sj)
	}

	removed := 0
	if window.MaxAge > 0 {
		kept := candidates[:0]
		for _, sj := range candidates {
			if sj.job.CompletedAt != nil && now.Sub(*sj.job.CompletedAt) > window.MaxAge {
				delete(s.jobs, sj.job.ID)
				removed++
				continue
			}
			kept = append(kept, sj)
		}
		candidates = kept
	}

	if window.MaxCount > 0 && len(candidates) > window.MaxCount {
		// Evict oldest first.
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].sequence < candidates[j].sequence
		})
		for _, sj := range candidates[:len(candidates)-window.MaxCount] {
			delete(s.jobs, sj.job.ID)
			removed++
		}
	}

	return removed
}
