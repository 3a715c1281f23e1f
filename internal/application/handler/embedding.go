package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/entity"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

// EmbeddingPayload is the embedding job input. Text is optional: when
// empty, the handler derives it from the entity's own fields.
type EmbeddingPayload struct {
	EntityKind entity.Kind `json:"entity_kind"`
	EntityID   uuid.UUID   `json:"entity_id"`
	Text       string      `json:"text,omitempty"`
}

// EmbeddingResult is the structured job result: vector metadata only, never
// the raw vector.
type EmbeddingResult struct {
	EntityID     uuid.UUID `json:"entity_id"`
	Dimension    int       `json:"dimension"`
	ProviderName string    `json:"provider_name"`
	ModelName    string    `json:"model_name"`
}

// EmbeddingHandler generates an embedding for one entity and stores the
// vector on its row.
type EmbeddingHandler struct {
	gateway  outbound.EmbeddingGateway
	entities outbound.EntityStore
}

// NewEmbeddingHandler creates the embedding job handler.
func NewEmbeddingHandler(gateway outbound.EmbeddingGateway, entities outbound.EntityStore) *EmbeddingHandler {
	return &EmbeddingHandler{gateway: gateway, entities: entities}
}

// Type names the job type this handler serves.
func (h *EmbeddingHandler) Type() job.Type { return job.TypeEmbedding }

// Handle embeds the entity's text and persists the vector.
func (h *EmbeddingHandler) Handle(ctx context.Context, j job.Job, report inbound.ProgressFunc) (json.RawMessage, error) {
	var payload EmbeddingPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, domain.NewValidation("invalid embedding payload", err)
	}
	if payload.EntityID == uuid.Nil {
		return nil, domain.NewValidation("entity_id is required", nil)
	}

	text := payload.Text
	if text == "" {
		e, err := h.entities.GetEntity(ctx, payload.EntityID)
		if err != nil {
			return nil, err
		}
		text = e.EmbeddingText()
	}
	if text == "" {
		return nil, domain.NewValidation(
			fmt.Sprintf("entity %s has no text to embed", payload.EntityID), nil)
	}

	reportProgress(ctx, report, 25)

	vector, err := h.gateway.Generate(ctx, text)
	if err != nil {
		return nil, err
	}

	reportProgress(ctx, report, 75)

	if err := h.entities.SetVector(ctx, payload.EntityID, vector); err != nil {
		return nil, err
	}

	reportProgress(ctx, report, 100)
	slogger.Info(ctx, "Entity vector stored", slogger.Fields{
		"entity_id": payload.EntityID.String(),
		"dimension": vector.Dimension,
		"provider":  vector.ProviderName,
	})

	return marshalResult(EmbeddingResult{
		EntityID:     payload.EntityID,
		Dimension:    vector.Dimension,
		ProviderName: vector.ProviderName,
		ModelName:    vector.ModelName,
	})
}
