package entitystore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"commandcenter/internal/domain/entity"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/search"
	"commandcenter/internal/port/outbound"
)

// MemoryEntityStore is an in-memory outbound.EntityStore with the same
// ordering and threshold semantics as the PostgreSQL store. It backs local
// development without a database and the search engine's tests.
type MemoryEntityStore struct {
	mu       sync.Mutex
	entities map[uuid.UUID]*entity.Entity
	vectors  map[uuid.UUID]*search.EmbeddingVector
}

// NewMemoryEntityStore creates an empty in-memory entity store.
func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{
		entities: make(map[uuid.UUID]*entity.Entity),
		vectors:  make(map[uuid.UUID]*search.EmbeddingVector),
	}
}

// PutEntity inserts or replaces an entity. Any stored vector is kept.
func (s *MemoryEntityStore) PutEntity(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := e
	s.entities[e.ID] = &copied
}

// GetEntity returns the entity or domain.ErrEntityNotFound.
func (s *MemoryEntityStore) GetEntity(_ context.Context, id uuid.UUID) (*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, domain.NewNotFound(fmt.Sprintf("entity %s not found", id), domain.ErrEntityNotFound)
	}
	copied := *e
	return &copied, nil
}

// GetVector returns the entity's stored vector or domain.ErrVectorMissing.
func (s *MemoryEntityStore) GetVector(_ context.Context, id uuid.UUID) (*search.EmbeddingVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return nil, domain.NewNotFound(fmt.Sprintf("entity %s not found", id), domain.ErrEntityNotFound)
	}
	vec, ok := s.vectors[id]
	if !ok {
		return nil, domain.NewNotFound(fmt.Sprintf("entity %s has no vector", id), domain.ErrVectorMissing)
	}
	copied := *vec
	copied.Values = append([]float64(nil), vec.Values...)
	return &copied, nil
}

// SetVector attaches a vector to the entity, replacing any previous one.
func (s *MemoryEntityStore) SetVector(_ context.Context, id uuid.UUID, vector *search.EmbeddingVector) error {
	if vector == nil || len(vector.Values) == 0 {
		return domain.NewValidation("vector cannot be empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return domain.NewNotFound(fmt.Sprintf("entity %s not found", id), domain.ErrEntityNotFound)
	}
	copied := *vector
	copied.Values = append([]float64(nil), vector.Values...)
	s.vectors[id] = &copied
	return nil
}

// SaveTranscript writes a finished transcript onto the call-record entity.
func (s *MemoryEntityStore) SaveTranscript(
	_ context.Context,
	callRecordID string,
	transcript string,
	_ float64,
) error {
	id, err := uuid.Parse(callRecordID)
	if err != nil {
		return domain.NewValidation(fmt.Sprintf("invalid call record id %q", callRecordID), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return domain.NewNotFound(fmt.Sprintf("call record %s not found", callRecordID), domain.ErrEntityNotFound)
	}
	e.Transcript = transcript
	return nil
}

// NearestNeighbors computes cosine distance in process, ordered by ascending
// distance with entity ID as the tie-break.
func (s *MemoryEntityStore) NearestNeighbors(
	_ context.Context,
	queryVector []float64,
	q outbound.NeighborQuery,
) ([]outbound.EntityMatch, error) {
	if len(queryVector) == 0 {
		return nil, domain.NewValidation("query vector cannot be empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []outbound.EntityMatch
	for id, vec := range s.vectors {
		if q.ExcludeID != uuid.Nil && id == q.ExcludeID {
			continue
		}
		e, ok := s.entities[id]
		if !ok {
			continue
		}

		similarity, err := cosineSimilarity(queryVector, vec.Values)
		if err != nil {
			return nil, err
		}
		if similarity <= q.MinSimilarity {
			continue
		}

		matches = append(matches, outbound.EntityMatch{
			Entity:     *e,
			Similarity: similarity,
			Distance:   1 - similarity,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Entity.ID.String() < matches[j].Entity.ID.String()
	})

	if q.Offset > 0 {
		if q.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[q.Offset:]
	}
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

// ListMissingVector returns up to limit entities lacking a vector, oldest
// first.
func (s *MemoryEntityStore) ListMissingVector(_ context.Context, limit int) ([]entity.Entity, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []entity.Entity
	for id, e := range s.entities {
		if _, ok := s.vectors[id]; !ok {
			missing = append(missing, *e)
		}
	}

	sort.Slice(missing, func(i, j int) bool {
		if !missing[i].CreatedAt.Equal(missing[j].CreatedAt) {
			return missing[i].CreatedAt.Before(missing[j].CreatedAt)
		}
		return missing[i].ID.String() < missing[j].ID.String()
	})

	if len(missing) > limit {
		missing = missing[:limit]
	}
	return missing, nil
}

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.NewValidation(
			fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)), nil)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
