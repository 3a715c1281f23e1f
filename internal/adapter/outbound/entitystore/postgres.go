package entitystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/entity"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
	"commandcenter/internal/port/outbound"
)

// PostgresEntityStore implements outbound.EntityStore over the
// commandcenter.entities table. Similarity queries use the pgvector cosine
// distance operator; similarity is 1 - distance.
type PostgresEntityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEntityStore creates a PostgreSQL-backed entity store.
func NewPostgresEntityStore(pool *pgxpool.Pool) (*PostgresEntityStore, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	return &PostgresEntityStore{pool: pool}, nil
}

const entityColumns = "id, kind, name, email, phone, notes, transcript, created_at, updated_at"

// GetEntity returns the entity or domain.ErrEntityNotFound.
func (s *PostgresEntityStore) GetEntity(ctx context.Context, id uuid.UUID) (*entity.Entity, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM commandcenter.entities
		WHERE id = $1`, entityColumns)

	row := s.pool.QueryRow(ctx, query, id)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound(fmt.Sprintf("entity %s not found", id), domain.ErrEntityNotFound)
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

// GetVector returns the entity's stored vector. A missing entity maps to
// ErrEntityNotFound, an entity without a vector to ErrVectorMissing.
func (s *PostgresEntityStore) GetVector(ctx context.Context, id uuid.UUID) (*search.EmbeddingVector, error) {
	query := `
		SELECT embedding::text, embedding_provider, embedding_model
		FROM commandcenter.entities
		WHERE id = $1`

	var vectorStr, provider, model *string
	err := s.pool.QueryRow(ctx, query, id).Scan(&vectorStr, &provider, &model)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound(fmt.Sprintf("entity %s not found", id), domain.ErrEntityNotFound)
		}
		return nil, fmt.Errorf("failed to get vector: %w", err)
	}
	if vectorStr == nil {
		return nil, domain.NewNotFound(fmt.Sprintf("entity %s has no vector", id), domain.ErrVectorMissing)
	}

	values, err := StringToVector(*vectorStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored vector: %w", err)
	}

	vec := &search.EmbeddingVector{Values: values, Dimension: len(values)}
	if provider != nil {
		vec.ProviderName = *provider
	}
	if model != nil {
		vec.ModelName = *model
	}
	return vec, nil
}

// SetVector attaches a vector to the entity, replacing any previous one.
func (s *PostgresEntityStore) SetVector(ctx context.Context, id uuid.UUID, vector *search.EmbeddingVector) error {
	if vector == nil || len(vector.Values) == 0 {
		return domain.NewValidation("vector cannot be empty", nil)
	}

	query := `
		UPDATE commandcenter.entities
		SET embedding = $2::vector,
		    embedding_provider = $3,
		    embedding_model = $4,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, VectorToString(vector.Values), vector.ProviderName, vector.ModelName)
	if err != nil {
		return fmt.Errorf("failed to set vector: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound(fmt.Sprintf("entity %s not found", id), domain.ErrEntityNotFound)
	}

	slogger.Debug(ctx, "Stored entity vector", slogger.Fields{
		"entity_id": id.String(),
		"dimension": len(vector.Values),
		"provider":  vector.ProviderName,
	})
	return nil
}

// SaveTranscript writes a finished transcript onto the call-record entity.
func (s *PostgresEntityStore) SaveTranscript(
	ctx context.Context,
	callRecordID string,
	transcript string,
	durationSeconds float64,
) error {
	id, err := uuid.Parse(callRecordID)
	if err != nil {
		return domain.NewValidation(fmt.Sprintf("invalid call record id %q", callRecordID), err)
	}

	query := `
		UPDATE commandcenter.entities
		SET transcript = $2,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, transcript)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound(fmt.Sprintf("call record %s not found", callRecordID), domain.ErrEntityNotFound)
	}

	slogger.Debug(ctx, "Saved call transcript", slogger.Fields{
		"call_record_id":   callRecordID,
		"duration_seconds": durationSeconds,
		"transcript_chars": len(transcript),
	})
	return nil
}

// NearestNeighbors runs a cosine-distance query over entities that have a
// vector. Matches are ordered by ascending distance with entity ID as the
// tie-break, and only similarities strictly above the threshold survive.
func (s *PostgresEntityStore) NearestNeighbors(
	ctx context.Context,
	queryVector []float64,
	q outbound.NeighborQuery,
) ([]outbound.EntityMatch, error) {
	if len(queryVector) == 0 {
		return nil, domain.NewValidation("query vector cannot be empty", nil)
	}

	var exclude any
	if q.ExcludeID != uuid.Nil {
		exclude = q.ExcludeID
	}

	query := fmt.Sprintf(`
		SELECT %s, (embedding <=> $1::vector) AS distance
		FROM commandcenter.entities
		WHERE embedding IS NOT NULL
		  AND ($2::uuid IS NULL OR id <> $2::uuid)
		  AND (1 - (embedding <=> $1::vector)) > $3
		ORDER BY distance ASC, id ASC
		LIMIT $4 OFFSET $5`, entityColumns)

	rows, err := s.pool.Query(ctx, query,
		VectorToString(queryVector), exclude, q.MinSimilarity, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest neighbors: %w", err)
	}
	defer rows.Close()

	var matches []outbound.EntityMatch
	for rows.Next() {
		var e entity.Entity
		var email, phone, notes, transcript *string
		var distance float64
		err := rows.Scan(
			&e.ID, &e.Kind, &e.Name, &email, &phone, &notes, &transcript,
			&e.CreatedAt, &e.UpdatedAt, &distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan neighbor row: %w", err)
		}
		applyOptional(&e, email, phone, notes, transcript)

		matches = append(matches, outbound.EntityMatch{
			Entity:     e,
			Similarity: 1 - distance,
			Distance:   distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate neighbor rows: %w", err)
	}
	return matches, nil
}

// ListMissingVector returns up to limit entities lacking a vector, oldest
// first, for backfill.
func (s *PostgresEntityStore) ListMissingVector(ctx context.Context, limit int) ([]entity.Entity, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM commandcenter.entities
		WHERE embedding IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1`, entityColumns)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities missing vectors: %w", err)
	}
	defer rows.Close()

	var entities []entity.Entity
	for rows.Next() {
		var e entity.Entity
		var email, phone, notes, transcript *string
		err := rows.Scan(
			&e.ID, &e.Kind, &e.Name, &email, &phone, &notes, &transcript,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		applyOptional(&e, email, phone, notes, transcript)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity rows: %w", err)
	}
	return entities, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*entity.Entity, error) {
	var e entity.Entity
	var email, phone, notes, transcript *string
	var createdAt, updatedAt time.Time

	err := row.Scan(&e.ID, &e.Kind, &e.Name, &email, &phone, &notes, &transcript, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = createdAt
	e.UpdatedAt = updatedAt
	applyOptional(&e, email, phone, notes, transcript)
	return &e, nil
}

func applyOptional(e *entity.Entity, email, phone, notes, transcript *string) {
	if email != nil {
		e.Email = *email
	}
	if phone != nil {
		e.Phone = *phone
	}
	if notes != nil {
		e.Notes = *notes
	}
	if transcript != nil {
		e.Transcript = *transcript
	}
}
