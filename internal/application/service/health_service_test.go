package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

type stubWorkerService struct {
	health []inbound.QueueHealth
	err    error
}

func (s *stubWorkerService) Start(context.Context) error { return nil }
func (s *stubWorkerService) Stop(context.Context) error  { return nil }

func (s *stubWorkerService) Health(context.Context) ([]inbound.QueueHealth, error) {
	return s.health, s.err
}

type stubChecker struct {
	name    string
	healthy bool
	detail  string
}

func (c stubChecker) Name() string { return c.name }

func (c stubChecker) Healthy(context.Context) (bool, string) { return c.healthy, c.detail }

// TestHealthService_AllHealthy verifies a clean report carries queue health
// and every dependency.
func TestHealthService_AllHealthy(t *testing.T) {
	workers := &stubWorkerService{health: []inbound.QueueHealth{{
		QueueName: "embedding",
		Counts:    outbound.QueueCounts{Waiting: 2},
		Worker:    inbound.WorkerStatus{QueueName: "embedding", Concurrency: 4},
	}}}
	svc := NewHealthService(workers,
		stubChecker{name: "database", healthy: true},
		stubChecker{name: "nats", healthy: true},
	)

	report := svc.Check(context.Background())
	assert.True(t, report.Healthy)
	require.Len(t, report.Queues, 1)
	assert.Equal(t, 2, report.Queues[0].Counts.Waiting)
	require.Len(t, report.Dependencies, 2)
	assert.False(t, report.CheckedAt.IsZero())
}

// TestHealthService_UnhealthyDependency verifies one failing dependency
// flips the overall status.
func TestHealthService_UnhealthyDependency(t *testing.T) {
	svc := NewHealthService(&stubWorkerService{},
		stubChecker{name: "database", healthy: true},
		stubChecker{name: "nats", healthy: false, detail: "connection refused"},
	)

	report := svc.Check(context.Background())
	assert.False(t, report.Healthy)
	require.Len(t, report.Dependencies, 2)
	assert.Equal(t, "connection refused", report.Dependencies[1].Detail)
}

// TestHealthService_StoreFailure verifies an unreadable job store surfaces
// as an unhealthy job_store dependency.
func TestHealthService_StoreFailure(t *testing.T) {
	svc := NewHealthService(&stubWorkerService{err: errors.New("connection reset")})

	report := svc.Check(context.Background())
	assert.False(t, report.Healthy)
	require.Len(t, report.Dependencies, 1)
	assert.Equal(t, "job_store", report.Dependencies[0].Name)
}
