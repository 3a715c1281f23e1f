package service

import (
	"context"
	"time"

	"commandcenter/internal/port/inbound"
)

// DependencyChecker reports one external dependency's health (database,
// message broker).
type DependencyChecker interface {
	Name() string
	Healthy(ctx context.Context) (bool, string)
}

// DependencyStatus is one dependency's health in the report.
type DependencyStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// HealthReport is the full health surface: overall status, per-queue counts
// and worker load, plus dependency checks.
type HealthReport struct {
	Healthy      bool                  `json:"healthy"`
	Queues       []inbound.QueueHealth `json:"queues"`
	Dependencies []DependencyStatus    `json:"dependencies,omitempty"`
	CheckedAt    time.Time             `json:"checked_at"`
}

// HealthService assembles the health report from the worker service and
// registered dependency checkers.
type HealthService struct {
	workers  inbound.WorkerService
	checkers []DependencyChecker
}

// NewHealthService creates a new HealthService instance.
func NewHealthService(workers inbound.WorkerService, checkers ...DependencyChecker) *HealthService {
	if workers == nil {
		panic("workers cannot be nil")
	}
	return &HealthService{workers: workers, checkers: checkers}
}

// Check gathers queue health and dependency status. The report is unhealthy
// when any dependency is down or queue counts cannot be read.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Healthy: true, CheckedAt: time.Now()}

	queues, err := s.workers.Health(ctx)
	if err != nil {
		report.Healthy = false
		report.Dependencies = append(report.Dependencies, DependencyStatus{
			Name:    "job_store",
			Healthy: false,
			Detail:  err.Error(),
		})
	} else {
		report.Queues = queues
	}

	for _, checker := range s.checkers {
		healthy, detail := checker.Healthy(ctx)
		if !healthy {
			report.Healthy = false
		}
		report.Dependencies = append(report.Dependencies, DependencyStatus{
			Name:    checker.Name(),
			Healthy: healthy,
			Detail:  detail,
		})
	}
	return report
}
