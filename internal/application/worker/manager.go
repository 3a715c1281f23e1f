package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/config"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

const (
	defaultStallCheckInterval = 30 * time.Second
	defaultRetentionInterval  = 5 * time.Minute
)

// PoolManager owns one pool per queue definition plus the cross-queue
// maintenance loops (stall recovery and retention sweeps). It is the single
// composition point replacing any global queue registry: callers construct
// one manager with explicit dependencies and drive it through the
// inbound.WorkerService surface.
type PoolManager struct {
	cfg         config.WorkerConfig
	definitions map[string]job.QueueDefinition

	store     outbound.JobStore
	publisher outbound.EventPublisher
	metrics   *JobMetrics
	handlers  *HandlerRegistry
	backoffs  *CustomBackoffRegistry

	mu      sync.Mutex
	pools   map[string]*Pool
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// ManagerDeps bundles the collaborators a manager needs.
type ManagerDeps struct {
	Store     outbound.JobStore
	Publisher outbound.EventPublisher
	Metrics   *JobMetrics
	Handlers  *HandlerRegistry
	Backoffs  *CustomBackoffRegistry
}

// NewPoolManager creates a manager covering every queue definition.
func NewPoolManager(
	cfg config.WorkerConfig,
	definitions map[string]job.QueueDefinition,
	deps ManagerDeps,
) (*PoolManager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("job store cannot be nil")
	}
	if deps.Handlers == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if len(definitions) == 0 {
		return nil, fmt.Errorf("at least one queue definition is required")
	}
	if deps.Backoffs == nil {
		deps.Backoffs = NewCustomBackoffRegistry()
	}

	m := &PoolManager{
		cfg:         cfg,
		definitions: definitions,
		store:       deps.Store,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		handlers:    deps.Handlers,
		backoffs:    deps.Backoffs,
		pools:       make(map[string]*Pool),
	}

	for name := range definitions {
		pool, err := NewPool(name, cfg.ForQueue(name), cfg.PollInterval, PoolDeps{
			Store:     deps.Store,
			Handlers:  deps.Handlers,
			Backoffs:  deps.Backoffs,
			Publisher: deps.Publisher,
			Metrics:   deps.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pool for queue %q: %w", name, err)
		}
		m.pools[name] = pool
	}

	return m, nil
}

// Start launches every pool plus the maintenance loops. It returns once
// everything is running; errors after startup surface through Stop.
func (m *PoolManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("worker pool manager already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(runCtx)

	for _, pool := range m.pools {
		pool := pool
		group.Go(func() error {
			return pool.Run(groupCtx)
		})
	}
	group.Go(func() error {
		return m.runStallRecovery(groupCtx)
	})
	group.Go(func() error {
		return m.runRetention(groupCtx)
	})

	m.cancel = cancel
	m.group = group
	m.started = true

	slogger.Info(ctx, "Worker pool manager started", slogger.Fields{
		"queues": len(m.pools),
	})
	return nil
}

// Stop cancels all pools and waits for in-flight jobs to settle or the
// context to expire.
func (m *PoolManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, group, started := m.cancel, m.group, m.started
	m.started = false
	m.mu.Unlock()

	if !started {
		return nil
	}
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("worker pool manager shutdown timed out: %w", ctx.Err())
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		slogger.Info(ctx, "Worker pool manager stopped", slogger.Fields{})
		return nil
	}
}

// Health reports store counts and worker status per queue, ordered by queue
// name for stable output.
func (m *PoolManager) Health(ctx context.Context) ([]inbound.QueueHealth, error) {
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)

	health := make([]inbound.QueueHealth, 0, len(names))
	for _, name := range names {
		counts, err := m.store.Counts(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to count jobs for queue %q: %w", name, err)
		}
		health = append(health, inbound.QueueHealth{
			QueueName: name,
			Counts:    counts,
			Worker:    m.pools[name].Status(),
		})
	}
	return health, nil
}

// runStallRecovery periodically re-queues active jobs whose lease expired
// and raises a stalled event per recovered job.
func (m *PoolManager) runStallRecovery(ctx context.Context) error {
	interval := m.cfg.StallCheckInterval
	if interval <= 0 {
		interval = defaultStallCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.recoverStalled(ctx)
		}
	}
}

func (m *PoolManager) recoverStalled(ctx context.Context) {
	for name := range m.definitions {
		ids, err := m.store.RecoverStalled(ctx, name)
		if err != nil {
			if ctx.Err() == nil {
				slogger.ErrorWithError(ctx, err, "Stall recovery failed", slogger.Fields{
					"queue": name,
				})
			}
			continue
		}
		for _, id := range ids {
			stallErr := domain.NewStall(fmt.Sprintf("lease expired without ack or nack for job %s", id))
			slogger.Warn(ctx, "Recovered stalled job", slogger.Fields{
				"queue":  name,
				"job_id": id.String(),
				"kind":   string(domain.KindOf(stallErr)),
			})
			event := job.Event{
				JobID:     id,
				QueueName: name,
				Phase:     job.PhaseStalled,
				Error:     stallErr.Error(),
				Timestamp: time.Now(),
			}
			m.metrics.RecordEvent(ctx, event)
			if m.publisher != nil {
				if pubErr := m.publisher.PublishJobEvent(ctx, event); pubErr != nil {
					slogger.Warn(ctx, "Failed to publish stall event", slogger.Fields{
						"queue": name,
						"error": pubErr.Error(),
					})
				}
			}
		}
	}
}

// runRetention periodically evicts terminal jobs past each queue's age and
// count bounds.
func (m *PoolManager) runRetention(ctx context.Context) error {
	interval := m.cfg.RetentionInterval
	if interval <= 0 {
		interval = defaultRetentionInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for name, def := range m.definitions {
				removed, err := m.store.ApplyRetention(ctx, def)
				if err != nil {
					if ctx.Err() == nil {
						slogger.ErrorWithError(ctx, err, "Retention sweep failed", slogger.Fields{
							"queue": name,
						})
					}
					continue
				}
				if removed > 0 {
					slogger.Info(ctx, "Retention sweep evicted jobs", slogger.Fields{
						"queue":   name,
						"evicted": removed,
					})
				}
			}
		}
	}
}
