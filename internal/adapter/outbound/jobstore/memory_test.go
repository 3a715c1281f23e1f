package jobstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryJobStore {
	t.Helper()

	defs := []job.QueueDefinition{
		{
			Name:           "notification",
			DefaultRetries: 3,
			Backoff:        job.BackoffPolicy{Kind: job.BackoffFixed, Base: 5 * time.Second},
		},
	}
	for i, def := range defs {
		defs[i] = def.WithDefaults()
		require.NoError(t, defs[i].Validate())
	}
	return NewMemoryJobStore(defs)
}

func enqueue(t *testing.T, store *MemoryJobStore, opts job.Options) uuid.UUID {
	t.Helper()

	id, err := store.Enqueue(
		context.Background(),
		"notification",
		job.Type("notification"),
		json.RawMessage(`{"type":"sms"}`),
		opts,
	)
	require.NoError(t, err)
	return id
}

// TestMemoryJobStore_EnqueueUnknownQueue verifies that enqueuing on a queue
// with no definition is rejected.
func TestMemoryJobStore_EnqueueUnknownQueue(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Enqueue(context.Background(), "missing", "x", nil, job.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueueNotFound)
}

// TestMemoryJobStore_EnqueueIdempotent verifies that a second enqueue with
// the same job ID is a no-op.
func TestMemoryJobStore_EnqueueIdempotent(t *testing.T) {
	store := newTestStore(t)
	jobID := uuid.New()

	first := enqueue(t, store, job.Options{JobID: jobID})
	second := enqueue(t, store, job.Options{JobID: jobID})

	assert.Equal(t, jobID, first)
	assert.Equal(t, jobID, second)

	counts, err := store.Counts(context.Background(), "notification")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Waiting)
}

// TestMemoryJobStore_LeaseOrder verifies that leasing drains by priority
// first and enqueue order within a priority.
func TestMemoryJobStore_LeaseOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low1 := enqueue(t, store, job.Options{Priority: 1})
	low2 := enqueue(t, store, job.Options{Priority: 1})
	high := enqueue(t, store, job.Options{Priority: 9})

	var leased []uuid.UUID
	for i := 0; i < 3; i++ {
		j, err := store.Lease(ctx, "notification", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, j)
		leased = append(leased, j.ID)
	}

	assert.Equal(t, []uuid.UUID{high, low1, low2}, leased)

	j, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, j, "empty queue leases nothing")
}

// TestMemoryJobStore_AckCompletesJob verifies the lease/ack happy path.
func TestMemoryJobStore_AckCompletesJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jobID := enqueue(t, store, job.Options{})

	leased, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, job.StateActive, leased.State)
	assert.Equal(t, 1, leased.AttemptsMade)
	require.NotNil(t, leased.LeasedUntil)

	require.NoError(t, store.Ack(ctx, jobID, json.RawMessage(`{"delivered":true}`)))

	stored, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StateCompleted, stored.State)
	assert.Equal(t, 100, stored.Progress)
	assert.JSONEq(t, `{"delivered":true}`, string(stored.Result))
	assert.Nil(t, stored.LeasedUntil)
	assert.NotNil(t, stored.CompletedAt)
}

// TestMemoryJobStore_AckRequiresActiveState verifies that settling a job that
// is not leased is rejected rather than silently applied.
func TestMemoryJobStore_AckRequiresActiveState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jobID := enqueue(t, store, job.Options{})

	err := store.Ack(ctx, jobID, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only active jobs")

	err = store.Nack(ctx, jobID, "boom", true, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only active jobs")
}

// TestMemoryJobStore_NackRetryableDelaysThenPromotes verifies that a
// retryable failure parks the job as delayed and a later lease picks it up
// once the backoff elapses.
func TestMemoryJobStore_NackRetryableDelaysThenPromotes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	jobID := enqueue(t, store, job.Options{})

	leased, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, leased)

	require.NoError(t, store.Nack(ctx, jobID, "provider timeout", true, 10*time.Second))

	state, err := store.GetState(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDelayed, state)

	// Still inside the backoff window: nothing leasable.
	j, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, j)

	now = now.Add(11 * time.Second)

	j, err = store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, jobID, j.ID)
	assert.Equal(t, 2, j.AttemptsMade)
	assert.Equal(t, "provider timeout", j.FailureReason)
}

// TestMemoryJobStore_NackExhaustedAttemptsFails verifies that the job fails
// permanently once attempts run out, even for retryable failures.
func TestMemoryJobStore_NackExhaustedAttemptsFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jobID := enqueue(t, store, job.Options{MaxAttempts: 2})

	for attempt := 1; attempt <= 2; attempt++ {
		leased, err := store.Lease(ctx, "notification", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, leased)
		assert.Equal(t, attempt, leased.AttemptsMade)
		require.NoError(t, store.Nack(ctx, jobID, "provider timeout", true, 0))
	}

	stored, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, stored.State)
	assert.Equal(t, "provider timeout", stored.FailureReason)
	assert.NotNil(t, stored.CompletedAt)
}

// TestMemoryJobStore_NackNonRetryableFailsImmediately verifies that a
// non-retryable failure never re-queues regardless of remaining attempts.
func TestMemoryJobStore_NackNonRetryableFailsImmediately(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jobID := enqueue(t, store, job.Options{MaxAttempts: 5})

	_, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Nack(ctx, jobID, "missing phoneNumber", false, 0))

	state, err := store.GetState(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, state)
}

// TestMemoryJobStore_UpdateProgressExtendsLease verifies that progress
// reports keep a long-running job's lease alive.
func TestMemoryJobStore_UpdateProgressExtendsLease(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	jobID := enqueue(t, store, job.Options{})

	leased, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, leased)
	firstDeadline := *leased.LeasedUntil

	now = now.Add(45 * time.Second)
	require.NoError(t, store.UpdateProgress(ctx, jobID, 50))

	stored, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Progress)
	require.NotNil(t, stored.LeasedUntil)
	assert.True(t, stored.LeasedUntil.After(firstDeadline), "lease deadline should move forward")
}

// TestMemoryJobStore_UpdateProgressRejectsOutOfRange verifies the percent
// bounds.
func TestMemoryJobStore_UpdateProgressRejectsOutOfRange(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateProgress(context.Background(), uuid.New(), 101)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "between 0 and 100")
}

// TestMemoryJobStore_RecoverStalled verifies that expired leases return jobs
// to waiting without charging an extra attempt.
func TestMemoryJobStore_RecoverStalled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	jobID := enqueue(t, store, job.Options{})

	leased, err := store.Lease(ctx, "notification", time.Second)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, 1, leased.AttemptsMade)

	// Lease still valid: nothing to recover.
	stalled, err := store.RecoverStalled(ctx, "notification")
	require.NoError(t, err)
	assert.Empty(t, stalled)

	now = now.Add(2 * time.Second)

	stalled, err = store.RecoverStalled(ctx, "notification")
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{jobID}, stalled)

	stored, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StateWaiting, stored.State)
	assert.Nil(t, stored.LeasedUntil)
	// The next lease charges the attempt, not the recovery.
	assert.Equal(t, 1, stored.AttemptsMade)

	relased, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, relased)
	assert.Equal(t, 2, relased.AttemptsMade)
}

// TestMemoryJobStore_Counts verifies per-state counting.
func TestMemoryJobStore_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	waiting := enqueue(t, store, job.Options{})
	_ = waiting
	activeID := enqueue(t, store, job.Options{Priority: 5})

	leased, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.Equal(t, activeID, leased.ID)

	counts, err := store.Counts(ctx, "notification")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Waiting)
	assert.Equal(t, 1, counts.Active)
	assert.Equal(t, 0, counts.Completed)
}

// TestMemoryJobStore_ApplyRetentionByAge verifies age-based eviction with the
// separate completed and failed windows.
func TestMemoryJobStore_ApplyRetentionByAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	completedID := enqueue(t, store, job.Options{})
	_, err := store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Ack(ctx, completedID, nil))

	failedID := enqueue(t, store, job.Options{MaxAttempts: 1})
	_, err = store.Lease(ctx, "notification", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Nack(ctx, failedID, "bad payload", false, 0))

	def := job.QueueDefinition{
		Name:           "notification",
		DefaultRetries: 3,
		Backoff:        job.BackoffPolicy{Kind: job.BackoffFixed, Base: time.Second},
		Retention: job.RetentionPolicy{
			Completed: job.RetentionWindow{MaxAge: time.Hour},
			Failed:    job.RetentionWindow{MaxAge: 24 * time.Hour},
		},
	}

	// Past the completed window but inside the failed one.
	now = now.Add(2 * time.Hour)

	removed, err := store.ApplyRetention(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetJob(ctx, completedID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = store.GetJob(ctx, failedID)
	assert.NoError(t, err, "failed jobs outlive completed ones")
}

// TestMemoryJobStore_ApplyRetentionByCount verifies count-based eviction
// drops the oldest terminal jobs first.
func TestMemoryJobStore_ApplyRetentionByCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var completed []uuid.UUID
	for i := 0; i < 4; i++ {
		id := enqueue(t, store, job.Options{})
		_, err := store.Lease(ctx, "notification", time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Ack(ctx, id, nil))
		completed = append(completed, id)
	}

	def := job.QueueDefinition{
		Name:           "notification",
		DefaultRetries: 3,
		Backoff:        job.BackoffPolicy{Kind: job.BackoffFixed, Base: time.Second},
		Retention: job.RetentionPolicy{
			Completed: job.RetentionWindow{MaxCount: 2},
		},
	}

	removed, err := store.ApplyRetention(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.GetJob(ctx, completed[0])
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = store.GetJob(ctx, completed[1])
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = store.GetJob(ctx, completed[2])
	assert.NoError(t, err)
	_, err = store.GetJob(ctx, completed[3])
	assert.NoError(t, err)
}
