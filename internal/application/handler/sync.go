package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

// SyncPayload is the sync job input.
type SyncPayload struct {
	Provider     string                 `json:"provider"`
	ResourceType string                 `json:"resource_type"`
	Direction    outbound.SyncDirection `json:"direction"`
	Since        time.Time              `json:"since,omitempty"`
}

// SyncResult is the structured job result. Per-item errors are data, not a
// job failure: a run with some failed items still completes.
type SyncResult struct {
	Provider     string                   `json:"provider"`
	ResourceType string                   `json:"resource_type"`
	Direction    outbound.SyncDirection   `json:"direction"`
	Created      int                      `json:"created"`
	Updated      int                      `json:"updated"`
	Deleted      int                      `json:"deleted"`
	Errors       []outbound.SyncItemError `json:"errors,omitempty"`
}

// SyncHandler exchanges records with external CRM and calendar providers.
type SyncHandler struct {
	providers map[string]outbound.SyncProvider
}

// NewSyncHandler creates the sync job handler over the given providers.
func NewSyncHandler(providers []outbound.SyncProvider) *SyncHandler {
	byName := make(map[string]outbound.SyncProvider, len(providers))
	for _, p := range providers {
		byName[p.Provider()] = p
	}
	return &SyncHandler{providers: byName}
}

// Type names the job type this handler serves.
func (h *SyncHandler) Type() job.Type { return job.TypeSync }

// Handle runs one sync and returns item counts plus per-item errors.
func (h *SyncHandler) Handle(ctx context.Context, j job.Job, report inbound.ProgressFunc) (json.RawMessage, error) {
	var payload SyncPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, domain.NewValidation("invalid sync payload", err)
	}
	if payload.Provider == "" {
		return nil, domain.NewValidation("provider is required", nil)
	}
	if payload.ResourceType == "" {
		return nil, domain.NewValidation("resource_type is required", nil)
	}
	switch payload.Direction {
	case outbound.SyncPull, outbound.SyncPush:
	default:
		return nil, domain.NewValidation(
			fmt.Sprintf("invalid sync direction %q", payload.Direction), nil)
	}

	provider, ok := h.providers[payload.Provider]
	if !ok {
		return nil, domain.NewConfiguration(
			fmt.Sprintf("no adapter configured for provider %q", payload.Provider), nil)
	}

	reportProgress(ctx, report, 10)

	outcome, err := provider.Sync(ctx, payload.ResourceType, payload.Direction, payload.Since)
	if err != nil {
		return nil, err
	}

	reportProgress(ctx, report, 100)
	slogger.Info(ctx, "Sync run finished", slogger.Fields{
		"provider":      payload.Provider,
		"resource_type": payload.ResourceType,
		"direction":     string(payload.Direction),
		"created":       outcome.Created,
		"updated":       outcome.Updated,
		"deleted":       outcome.Deleted,
		"item_errors":   len(outcome.Errors),
	})

	return marshalResult(SyncResult{
		Provider:     payload.Provider,
		ResourceType: payload.ResourceType,
		Direction:    payload.Direction,
		Created:      outcome.Created,
		Updated:      outcome.Updated,
		Deleted:      outcome.Deleted,
		Errors:       outcome.Errors,
	})
}
