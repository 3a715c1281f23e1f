// Package entitystore persists CRM entities and their embedding vectors in
// PostgreSQL with pgvector, and serves nearest-neighbor queries.
package entitystore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"commandcenter/internal/config"
)

const defaultMaxConns = 10

// NewPool creates a pgx connection pool for the configured database and
// verifies connectivity with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	} else {
		poolConfig.MaxConns = defaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if pingErr := pool.Ping(pingCtx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return pool, nil
}

// PoolHealth is a point-in-time snapshot of the connection pool.
type PoolHealth struct {
	Healthy        bool   `json:"healthy"`
	TotalConns     int32  `json:"total_conns"`
	IdleConns      int32  `json:"idle_conns"`
	AcquiredConns  int32  `json:"acquired_conns"`
	PingLatencyMS  int64  `json:"ping_latency_ms"`
	Error          string `json:"error,omitempty"`
}

// HealthChecker reports database liveness for the health endpoint.
type HealthChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker creates a health checker over the given pool.
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Name identifies the database in health reports.
func (h *HealthChecker) Name() string { return "postgres" }

// Healthy reports liveness as a boolean plus a short detail string.
func (h *HealthChecker) Healthy(ctx context.Context) (bool, string) {
	health := h.Check(ctx)
	if !health.Healthy {
		return false, health.Error
	}
	return true, fmt.Sprintf("%d/%d conns acquired, ping %dms",
		health.AcquiredConns, health.TotalConns, health.PingLatencyMS)
}

// Check pings the database and reports pool statistics.
func (h *HealthChecker) Check(ctx context.Context) PoolHealth {
	if h.pool == nil {
		return PoolHealth{Healthy: false, Error: "pool not initialized"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.pool.Ping(pingCtx)
	latency := time.Since(start)

	stat := h.pool.Stat()
	health := PoolHealth{
		Healthy:       err == nil,
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		PingLatencyMS: latency.Milliseconds(),
	}
	if err != nil {
		health.Error = err.Error()
	}
	return health
}
