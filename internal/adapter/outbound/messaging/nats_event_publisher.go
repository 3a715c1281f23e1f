// Package messaging publishes job lifecycle events to NATS JetStream so
// external observers (dashboards, audit consumers) see queue activity
// without polling the store.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/config"
	"commandcenter/internal/domain/job"
)

const (
	natsConnectionTimeoutSeconds = 5

	streamName     = "JOB_EVENTS"
	streamSubjects = "jobs.events.>"
	streamMaxAge   = 24 * time.Hour

	// Circuit breaker thresholds: after this many consecutive publish
	// failures the publisher stops trying until the cooldown elapses.
	breakerFailureThreshold = 5
	breakerCooldown         = 30 * time.Second
)

// ConnectionHealthStatus represents the health of the NATS connection.
type ConnectionHealthStatus struct {
	Connected  bool   `json:"connected"`
	LastError  string `json:"last_error,omitempty"`
	Reconnects int    `json:"reconnects"`
}

// PublishMetrics tracks event publishing counters.
type PublishMetrics struct {
	PublishedCount    int64     `json:"published_count"`
	FailedCount       int64     `json:"failed_count"`
	LastPublishedTime time.Time `json:"last_published_time"`
}

// NATSEventPublisher delivers job lifecycle events to a JetStream stream.
// Publish failures never fail job processing; after repeated failures a
// circuit breaker suppresses attempts for a cooldown so a NATS outage does
// not add latency to every job.
type NATSEventPublisher struct {
	config config.NATSConfig
	conn   *nats.Conn
	js     nats.JetStreamContext

	mutex          sync.RWMutex
	connected      bool
	reconnectCount int
	lastError      error
	metrics        PublishMetrics

	breakerOpen     bool
	failureCount    int
	lastFailureTime time.Time
}

// NewNATSEventPublisher validates the configuration and returns an
// unconnected publisher. Call Connect before publishing.
func NewNATSEventPublisher(cfg config.NATSConfig) (*NATSEventPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	return &NATSEventPublisher{config: cfg}, nil
}

// Connect establishes the NATS connection, creates the JetStream context
// and ensures the JOB_EVENTS stream exists.
func (p *NATSEventPublisher) Connect() error {
	opts := []nats.Option{
		nats.MaxReconnects(p.config.MaxReconnects),
		nats.ReconnectWait(p.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.mutex.Lock()
			p.reconnectCount++
			p.connected = true
			p.mutex.Unlock()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.mutex.Lock()
			p.connected = false
			p.lastError = err
			p.mutex.Unlock()
		}),
	}

	conn, err := nats.Connect(p.config.URL, opts...)
	if err != nil {
		p.recordConnectionError(err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		p.recordConnectionError(err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(js); err != nil {
		conn.Close()
		p.recordConnectionError(err)
		return err
	}

	p.mutex.Lock()
	p.conn = conn
	p.js = js
	p.connected = true
	p.lastError = nil
	p.mutex.Unlock()
	return nil
}

func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{streamSubjects},
		MaxAge:   streamMaxAge,
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishJobEvent publishes one lifecycle event to
// jobs.events.<queue>.<phase>. The async publish keeps job processing off
// the broker's critical path.
func (p *NATSEventPublisher) PublishJobEvent(ctx context.Context, event job.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if p.isBreakerOpen() {
		p.recordFailure(errors.New("circuit breaker open"))
		return errors.New("event publisher circuit breaker open: too many recent failures")
	}

	p.mutex.RLock()
	js := p.js
	p.mutex.RUnlock()
	if js == nil {
		err := errors.New("not connected to NATS")
		p.recordFailure(err)
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.recordFailure(err)
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	subject := fmt.Sprintf("jobs.events.%s.%s", event.QueueName, event.Phase)
	if _, err := js.PublishAsync(subject, data); err != nil {
		p.recordFailure(err)
		return fmt.Errorf("failed to publish job event: %w", err)
	}

	p.recordSuccess()
	slogger.Debug(ctx, "Published job event", slogger.Fields{
		"subject": subject,
		"job_id":  event.JobID.String(),
		"phase":   string(event.Phase),
	})
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSEventPublisher) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.js = nil
	}
	p.connected = false
	return nil
}

// Health reports connection state for the health endpoint.
func (p *NATSEventPublisher) Health() ConnectionHealthStatus {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	status := ConnectionHealthStatus{
		Connected:  p.connected,
		Reconnects: p.reconnectCount,
	}
	if p.lastError != nil {
		status.LastError = p.lastError.Error()
	}
	return status
}

// Metrics returns a snapshot of the publish counters.
func (p *NATSEventPublisher) Metrics() PublishMetrics {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.metrics
}

func (p *NATSEventPublisher) isBreakerOpen() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if !p.breakerOpen {
		return false
	}
	return time.Since(p.lastFailureTime) < breakerCooldown
}

func (p *NATSEventPublisher) recordSuccess() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.metrics.PublishedCount++
	p.metrics.LastPublishedTime = time.Now()
	p.failureCount = 0
	p.breakerOpen = false
}

func (p *NATSEventPublisher) recordFailure(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.metrics.FailedCount++
	p.lastError = err
	p.failureCount++
	p.lastFailureTime = time.Now()
	if p.failureCount >= breakerFailureThreshold {
		p.breakerOpen = true
	}
}

func (p *NATSEventPublisher) recordConnectionError(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.connected = false
	p.lastError = err
}

// NoopEventPublisher discards events. Used when NATS is disabled in
// configuration.
type NoopEventPublisher struct{}

// PublishJobEvent discards the event.
func (NoopEventPublisher) PublishJobEvent(context.Context, job.Event) error { return nil }

// Close is a no-op.
func (NoopEventPublisher) Close() error { return nil }
