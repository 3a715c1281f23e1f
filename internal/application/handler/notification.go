package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

// NotificationPayload is the notification job input. Type names the
// channel; the delivery target comes from Target or, failing that, from the
// channel's conventional data key (phoneNumber, email, deviceToken, url).
type NotificationPayload struct {
	Type     string            `json:"type"`
	UserID   string            `json:"user_id"`
	Target   string            `json:"target,omitempty"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// targetKeys maps each channel to the data key holding its target.
var targetKeys = map[string]string{
	"sms":     "phoneNumber",
	"email":   "email",
	"push":    "deviceToken",
	"webhook": "url",
}

// NotificationHandler dispatches one message to the adapter serving the
// payload's channel.
type NotificationHandler struct {
	channels map[string]outbound.NotificationChannel
}

// NewNotificationHandler creates the notification job handler over the
// given channel adapters.
func NewNotificationHandler(channels []outbound.NotificationChannel) *NotificationHandler {
	byName := make(map[string]outbound.NotificationChannel, len(channels))
	for _, ch := range channels {
		byName[ch.Channel()] = ch
	}
	return &NotificationHandler{channels: byName}
}

// Type names the job type this handler serves.
func (h *NotificationHandler) Type() job.Type { return job.TypeNotification }

// Handle sends the notification and returns the delivery outcome.
func (h *NotificationHandler) Handle(ctx context.Context, j job.Job, report inbound.ProgressFunc) (json.RawMessage, error) {
	var payload NotificationPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, domain.NewValidation("invalid notification payload", err)
	}
	if payload.Type == "" {
		return nil, domain.NewValidation("notification type is required", nil)
	}
	if payload.Template == "" {
		return nil, domain.NewValidation("template is required", nil)
	}

	channel, ok := h.channels[payload.Type]
	if !ok {
		return nil, domain.NewConfiguration(
			fmt.Sprintf("no adapter configured for channel %q", payload.Type), nil)
	}

	target := payload.Target
	if target == "" {
		if key, known := targetKeys[payload.Type]; known {
			target = payload.Data[key]
		}
	}
	if target == "" {
		return nil, domain.NewValidation(
			fmt.Sprintf("no delivery target for channel %q", payload.Type), nil)
	}

	reportProgress(ctx, report, 25)

	result, err := channel.Send(ctx, target, payload.Template, payload.Data)
	if err != nil {
		return nil, err
	}

	reportProgress(ctx, report, 100)
	slogger.Info(ctx, "Notification delivered", slogger.Fields{
		"channel":    result.Channel,
		"user_id":    payload.UserID,
		"message_id": result.MessageID,
	})

	return marshalResult(result)
}
