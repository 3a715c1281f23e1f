package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobsTable = "commandcenter.jobs"

// PostgresJobStore implements the JobStore contract on PostgreSQL. Lease
// atomicity comes from FOR UPDATE SKIP LOCKED: concurrent leasers never see
// the same row, and a crashed worker's row simply becomes leasable again
// once leased_until passes.
type PostgresJobStore struct {
	pool        *pgxpool.Pool
	definitions map[string]job.QueueDefinition
}

// NewPostgresJobStore creates a new PostgreSQL job store over the given
// queue definitions.
func NewPostgresJobStore(pool *pgxpool.Pool, definitions []job.QueueDefinition) *PostgresJobStore {
	defs := make(map[string]job.QueueDefinition, len(definitions))
	for _, def := range definitions {
		defs[def.Name] = def
	}
	return &PostgresJobStore{pool: pool, definitions: defs}
}

// Enqueue creates a job in the waiting state. A supplied JobID makes the
// call idempotent: the insert is ON CONFLICT DO NOTHING and the existing ID
// is returned.
func (s *PostgresJobStore) Enqueue(
	ctx context.Context,
	queueName string,
	jobType job.Type,
	payload json.RawMessage,
	opts job.Options,
) (uuid.UUID, error) {
	def, ok := s.definitions[queueName]
	if !ok {
		return uuid.Nil, fmt.Errorf("enqueue on %q: %w", queueName, domain.ErrQueueNotFound)
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

	backoffJSON, err := json.Marshal(backoff)
	if err != nil {
		return uuid.Nil, WrapError(err, "marshal backoff policy")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, queue_name, job_type, payload, priority,
			attempts_made, max_attempts, backoff, state, progress, created_at
		) VALUES ($1, $2, $3, $4, $5, 0, $6, $7, 'waiting', 0, NOW())
		ON CONFLICT (id) DO NOTHING`, jobsTable)

	_, err = s.pool.Exec(ctx, query, id, queueName, string(jobType), payload, priority, maxAttempts, backoffJSON)
	if err != nil {
		return uuid.Nil, WrapError(err, "enqueue job")
	}

	return id, nil
}

// Lease atomically claims the best leasable job: highest priority first,
// then FIFO by insertion order. Delayed jobs whose backoff has elapsed
// compete with waiting jobs in the same pass.
func (s *PostgresJobStore) Lease(
	ctx context.Context,
	queueName string,
	leaseDuration time.Duration,
) (*job.Job, error) {
	leasedUntil := time.Now().Add(leaseDuration)

	query := fmt.Sprintf(`
		WITH candidate AS (
			SELECT id FROM %s
			WHERE queue_name = $1
			  AND (state = 'waiting' OR (state = 'delayed' AND ready_at <= NOW()))
			ORDER BY priority DESC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE %s j SET
			state = 'active',
			attempts_made = j.attempts_made + 1,
			leased_until = $2,
			lease_duration_ms = $3
		FROM candidate
		WHERE j.id = candidate.id
		RETURNING j.id, j.queue_name, j.job_type, j.payload, j.priority,
			j.attempts_made, j.max_attempts, j.backoff, j.state, j.progress,
			j.result, j.failure_reason, j.created_at, j.leased_until, j.completed_at`,
		jobsTable, jobsTable)

	row := s.pool.QueryRow(ctx, query, queueName, leasedUntil, leaseDuration.Milliseconds())

	j, err := scanJob(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "lease job")
	}
	return j, nil
}

// Ack marks a leased job completed and records its result.
func (s *PostgresJobStore) Ack(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			state = 'completed',
			result = $2,
			progress = 100,
			leased_until = NULL,
			completed_at = NOW()
		WHERE id = $1 AND state = 'active'`, jobsTable)

	tag, err := s.pool.Exec(ctx, query, jobID, result)
	if err != nil {
		return WrapError(err, "ack job")
	}
	if tag.RowsAffected() == 0 {
		return s.stateConflictError(ctx, jobID, "ack")
	}
	return nil
}

// Nack records a failure: re-queues after the delay when retryable and
// attempts remain, fails permanently otherwise. The failure reason is
// always retained for diagnosis.
func (s *PostgresJobStore) Nack(
	ctx context.Context,
	jobID uuid.UUID,
	reason string,
	retryable bool,
	delay time.Duration,
) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			failure_reason = $2,
			leased_until = NULL,
			state = CASE
				WHEN $3 AND attempts_made < max_attempts THEN 'delayed'
				ELSE 'failed'
			END,
			ready_at = CASE
				WHEN $3 AND attempts_made < max_attempts THEN NOW() + $4::interval
				ELSE NULL
			END,
			completed_at = CASE
				WHEN $3 AND attempts_made < max_attempts THEN NULL
				ELSE NOW()
			END
		WHERE id = $1 AND state = 'active'`, jobsTable)

	tag, err := s.pool.Exec(ctx, query, jobID, reason, retryable, delay)
	if err != nil {
		return WrapError(err, "nack job")
	}
	if tag.RowsAffected() == 0 {
		return s.stateConflictError(ctx, jobID, "nack")
	}
	return nil
}

// UpdateProgress records advisory progress and extends the lease by the
// job's original lease duration.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, jobID uuid.UUID, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("progress must be between 0 and 100, got %d: %w", percent, domain.ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET
			progress = $2,
			leased_until = NOW() + (lease_duration_ms * interval '1 millisecond')
		WHERE id = $1 AND state = 'active'`, jobsTable)

	tag, err := s.pool.Exec(ctx, query, jobID, percent)
	if err != nil {
		return WrapError(err, "update job progress")
	}
	if tag.RowsAffected() == 0 {
		return s.stateConflictError(ctx, jobID, "progress update")
	}
	return nil
}

// GetState returns the lifecycle state of a job.
func (s *PostgresJobStore) GetState(ctx context.Context, jobID uuid.UUID) (job.State, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE id = $1`, jobsTable)

	var state string
	if err := s.pool.QueryRow(ctx, query, jobID).Scan(&state); err != nil {
		if IsNotFoundError(err) {
			return "", domain.ErrJobNotFound
		}
		return "", WrapError(err, "get job state")
	}
	return job.NewState(state)
}

// GetJob returns the full job record.
func (s *PostgresJobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	query := fmt.Sprintf(`
		SELECT id, queue_name, job_type, payload, priority,
			attempts_made, max_attempts, backoff, state, progress,
			result, failure_reason, created_at, leased_until, completed_at
		FROM %s WHERE id = $1`, jobsTable)

	j, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, WrapError(err, "get job")
	}
	return j, nil
}

// RecoverStalled re-queues active jobs whose lease expired without ack or
// nack and returns their IDs.
func (s *PostgresJobStore) RecoverStalled(ctx context.Context, queueName string) ([]uuid.UUID, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET state = 'waiting', leased_until = NULL
		WHERE queue_name = $1 AND state = 'active' AND leased_until < NOW()
		RETURNING id`, jobsTable)

	rows, err := s.pool.Query(ctx, query, queueName)
	if err != nil {
		return nil, WrapError(err, "recover stalled jobs")
	}
	defer rows.Close()

	var stalled []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, WrapError(err, "scan stalled job id")
		}
		stalled = append(stalled, id)
	}
	return stalled, rows.Err()
}

// Counts returns per-state job counts for the queue's health endpoint.
func (s *PostgresJobStore) Counts(ctx context.Context, queueName string) (outbound.QueueCounts, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE state = 'waiting'),
			COUNT(*) FILTER (WHERE state = 'active'),
			COUNT(*) FILTER (WHERE state = 'delayed'),
			COUNT(*) FILTER (WHERE state = 'completed'),
			COUNT(*) FILTER (WHERE state = 'failed')
		FROM %s WHERE queue_name = $1`, jobsTable)

	var counts outbound.QueueCounts
	err := s.pool.QueryRow(ctx, query, queueName).Scan(
		&counts.Waiting, &counts.Active, &counts.Delayed, &counts.Completed, &counts.Failed,
	)
	if err != nil {
		return outbound.QueueCounts{}, WrapError(err, "count jobs")
	}
	return counts, nil
}

// ApplyRetention evicts terminal jobs past the queue's age and count
// bounds. Failed jobs use their own, longer window.
func (s *PostgresJobStore) ApplyRetention(ctx context.Context, def job.QueueDefinition) (int, error) {
	removed := 0

	for _, target := range []struct {
		state  job.State
		window job.RetentionWindow
	}{
		{job.StateCompleted, def.Retention.Completed},
		{job.StateFailed, def.Retention.Failed},
	} {
		n, err := s.applyWindow(ctx, def.Name, target.state, target.window)
		if err != nil {
			return removed, err
		}
		removed += n
	}

	return removed, nil
}

func (s *PostgresJobStore) applyWindow(
	ctx context.Context,
	queueName string,
	state job.State,
	window job.RetentionWindow,
) (int, error) {
	removed := 0

	if window.MaxAge > 0 {
		query := fmt.Sprintf(`
			DELETE FROM %s
			WHERE queue_name = $1 AND state = $2 AND completed_at < NOW() - $3::interval`, jobsTable)
		tag, err := s.pool.Exec(ctx, query, queueName, string(state), window.MaxAge)
		if err != nil {
			return removed, WrapError(err, "retention by age")
		}
		removed += int(tag.RowsAffected())
	}

	if window.MaxCount > 0 {
		// Keep the newest MaxCount rows, evict the rest.
		query := fmt.Sprintf(`
			DELETE FROM %s
			WHERE id IN (
				SELECT id FROM %s
				WHERE queue_name = $1 AND state = $2
				ORDER BY completed_at DESC
				OFFSET $3
			)`, jobsTable, jobsTable)
		tag, err := s.pool.Exec(ctx, query, queueName, string(state), window.MaxCount)
		if err != nil {
			return removed, WrapError(err, "retention by count")
		}
		removed += int(tag.RowsAffected())
	}

	return removed, nil
}

// stateConflictError distinguishes "no such job" from "job not active" when
// an ack/nack/progress update matched zero rows.
func (s *PostgresJobStore) stateConflictError(ctx context.Context, jobID uuid.UUID, operation string) error {
	state, err := s.GetState(ctx, jobID)
	if err != nil {
		return domain.ErrJobNotFound
	}
	return fmt.Errorf("%s for job %s in state %s: job is not active", operation, jobID, state)
}

// rowScanner abstracts pgx.Row for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var j job.Job
	var jobType, state string
	var backoffJSON []byte
	var payload, result []byte
	var failureReason *string

	err := row.Scan(
		&j.ID, &j.QueueName, &jobType, &payload, &j.Priority,
		&j.AttemptsMade, &j.MaxAttempts, &backoffJSON, &state, &j.Progress,
		&result, &failureReason, &j.CreatedAt, &j.LeasedUntil, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = job.Type(jobType)
	j.Payload = payload
	j.Result = result
	if failureReason != nil {
		j.FailureReason = *failureReason
	}
	if j.State, err = job.NewState(state); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(backoffJSON, &j.Backoff); err != nil {
		return nil, fmt.Errorf("unmarshal backoff policy: %w", err)
	}

	return &j, nil
}
