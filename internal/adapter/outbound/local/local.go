// Package local provides development-mode adapters for the external vendor
// ports: a canned transcriber, log-backed notification channels and a
// loopback sync provider. Together with the deterministic embedding provider
// they let the whole pipeline run with no external accounts.
package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/port/outbound"
)

// Transcriber produces a canned transcript derived from the audio URL. It
// stands in for a speech-to-text vendor during development.
type Transcriber struct{}

// NewTranscriber creates the development transcriber.
func NewTranscriber() *Transcriber {
	return &Transcriber{}
}

// Transcribe returns a short deterministic transcript so downstream steps
// (persistence, embedding of call records) have real text to work with.
func (t *Transcriber) Transcribe(
	ctx context.Context,
	audioURL string,
	options outbound.TranscribeOptions,
) (*outbound.TranscriptionResult, error) {
	if strings.TrimSpace(audioURL) == "" {
		return nil, domain.NewValidation("audio URL is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transcript := fmt.Sprintf("Placeholder transcript for recording %s.", audioURL)
	words := strings.Fields(transcript)

	result := &outbound.TranscriptionResult{
		Transcript:      transcript,
		DurationSeconds: float64(len(words)) / 2.5,
	}
	for i, w := range words {
		result.Words = append(result.Words, outbound.TranscriptWord{
			Word:    w,
			StartMs: i * 400,
			EndMs:   (i + 1) * 400,
		})
	}
	if options.Diarization {
		result.Speakers = []outbound.SpeakerSegment{
			{Speaker: 0, StartMs: 0, EndMs: len(words) * 400},
		}
	}
	return result, nil
}

// LogChannel is a notification channel that delivers by logging. Each Send
// succeeds with a fresh message ID.
type LogChannel struct {
	name string
}

// NewLogChannel creates a log-backed channel with the given name (sms,
// email, push, webhook).
func NewLogChannel(name string) *LogChannel {
	return &LogChannel{name: name}
}

// Channel returns the channel name.
func (c *LogChannel) Channel() string { return c.name }

// Send logs the message instead of delivering it.
func (c *LogChannel) Send(
	ctx context.Context,
	target string,
	template string,
	data map[string]string,
) (*outbound.NotificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messageID := uuid.New().String()
	slogger.Info(ctx, "Delivered notification (log channel)", slogger.Fields{
		"channel":    c.name,
		"target":     target,
		"template":   template,
		"data_keys":  len(data),
		"message_id": messageID,
	})

	return &outbound.NotificationResult{
		Delivered: true,
		Channel:   c.name,
		MessageID: messageID,
	}, nil
}

// LoopbackSyncProvider is a sync provider that exchanges nothing. It keeps
// the sync queue exercisable before any real CRM integration is configured.
type LoopbackSyncProvider struct{}

// NewLoopbackSyncProvider creates the loopback provider.
func NewLoopbackSyncProvider() *LoopbackSyncProvider {
	return &LoopbackSyncProvider{}
}

// Provider returns the provider name.
func (p *LoopbackSyncProvider) Provider() string { return "loopback" }

// Sync reports an empty successful run.
func (p *LoopbackSyncProvider) Sync(
	ctx context.Context,
	resourceType string,
	direction outbound.SyncDirection,
	since time.Time,
) (*outbound.SyncOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slogger.Debug(ctx, "Loopback sync run", slogger.Fields{
		"resource_type": resourceType,
		"direction":     string(direction),
		"since":         since.Format(time.RFC3339),
	})
	return &outbound.SyncOutcome{}, nil
}
