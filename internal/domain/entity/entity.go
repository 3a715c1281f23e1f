// Package entity provides the CRM entity types the search engine and job
// handlers operate on. The full CRUD model lives outside this core; these
// are the fields embedding and search need.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the entity types that carry embeddings.
type Kind string

// Entity kind constants.
const (
	KindContact    Kind = "contact"
	KindCallRecord Kind = "call_record"
)

// Entity is a CRM record that may carry an embedding vector. The vector
// lives as a column on the entity's row, not as its own record.
type Entity struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EmbeddingText derives the embedding input for the entity. The field order
// is fixed so backfill produces identical input for identical records.
func (e Entity) EmbeddingText() string {
	var parts []string
	switch e.Kind {
	case KindCallRecord:
		parts = []string{e.Name, e.Transcript, e.Notes}
	case KindContact:
		parts = []string{e.Name, e.Email, e.Phone, e.Notes}
	default:
		parts = []string{e.Name, e.Notes}
	}

	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
