package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandcenter/internal/adapter/outbound/jobstore"
	"commandcenter/internal/config"
	"commandcenter/internal/domain/job"
)

func newTestManager(t *testing.T, store *jobstore.MemoryJobStore, publisher *recordingPublisher) *PoolManager {
	t.Helper()

	handlers := NewHandlerRegistry()
	require.NoError(t, handlers.Register(&stubHandler{jobType: job.TypeNotification}))

	defs := map[string]job.QueueDefinition{
		"notification": testQueueDefinition("notification"),
	}
	manager, err := NewPoolManager(config.WorkerConfig{
		Defaults: config.WorkerQueueConfig{
			Concurrency:   1,
			LeaseDuration: time.Second,
		},
		PollInterval: 5 * time.Millisecond,
	}, defs, ManagerDeps{
		Store:     store,
		Publisher: publisher,
		Handlers:  handlers,
	})
	require.NoError(t, err)
	return manager
}

// TestPoolManager_StartStop verifies the lifecycle: double start is
// rejected, stop is idempotent.
func TestPoolManager_StartStop(t *testing.T) {
	store := jobstore.NewMemoryJobStore([]job.QueueDefinition{testQueueDefinition("notification")})
	manager := newTestManager(t, store, &recordingPublisher{})

	ctx := context.Background()
	require.NoError(t, manager.Start(ctx))
	require.Error(t, manager.Start(ctx), "second start must fail")

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, manager.Stop(stopCtx))
	require.NoError(t, manager.Stop(stopCtx), "stop after stop is a no-op")
}

// TestPoolManager_Health verifies counts and worker status come back per
// queue in stable order.
func TestPoolManager_Health(t *testing.T) {
	store := jobstore.NewMemoryJobStore([]job.QueueDefinition{testQueueDefinition("notification")})
	manager := newTestManager(t, store, &recordingPublisher{})

	ctx := context.Background()
	_, err := store.Enqueue(ctx, "notification", job.TypeNotification, json.RawMessage(`{}`), job.Options{})
	require.NoError(t, err)

	health, err := manager.Health(ctx)
	require.NoError(t, err)
	require.Len(t, health, 1)
	assert.Equal(t, "notification", health[0].QueueName)
	assert.Equal(t, 1, health[0].Counts.Waiting)
	assert.Equal(t, 1, health[0].Worker.Concurrency)
}

// TestPoolManager_RecoverStalled verifies expired leases are re-queued and
// each recovery raises a stalled event.
func TestPoolManager_RecoverStalled(t *testing.T) {
	store := jobstore.NewMemoryJobStore([]job.QueueDefinition{testQueueDefinition("notification")})
	publisher := &recordingPublisher{}
	manager := newTestManager(t, store, publisher)

	ctx := context.Background()
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	id, err := store.Enqueue(ctx, "notification", job.TypeNotification, json.RawMessage(`{}`), job.Options{})
	require.NoError(t, err)

	leased, err := store.Lease(ctx, "notification", time.Second)
	require.NoError(t, err)
	require.NotNil(t, leased)

	// Lease expires; the job is stuck active until recovery runs.
	now = now.Add(2 * time.Second)
	manager.recoverStalled(ctx)

	state, err := store.GetState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StateWaiting, state)

	events := publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, job.PhaseStalled, events[0].Phase)
	assert.Equal(t, id, events[0].JobID)
	assert.Contains(t, events[0].Error, "lease expired without ack or nack")
}
