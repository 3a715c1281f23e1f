package outbound

import (
	"context"
	"time"
)

// Transcriber is the speech-to-text adapter invoked by the transcription
// handler. Vendor wrappers (Deepgram and friends) implement it elsewhere.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string, options TranscribeOptions) (*TranscriptionResult, error)
}

// TranscribeOptions carries locale and diarization flags.
type TranscribeOptions struct {
	Locale      string `json:"locale,omitempty"`
	Diarization bool   `json:"diarization"`
}

// TranscriptWord is one recognized word with timing.
type TranscriptWord struct {
	Word    string  `json:"word"`
	StartMs int     `json:"start_ms"`
	EndMs   int     `json:"end_ms"`
	Speaker int     `json:"speaker,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// SpeakerSegment is one contiguous stretch of a single speaker.
type SpeakerSegment struct {
	Speaker int `json:"speaker"`
	StartMs int `json:"start_ms"`
	EndMs   int `json:"end_ms"`
}

// TranscriptionResult is the adapter's structured output.
type TranscriptionResult struct {
	Transcript      string           `json:"transcript"`
	Words           []TranscriptWord `json:"words,omitempty"`
	Speakers        []SpeakerSegment `json:"speakers,omitempty"`
	DurationSeconds float64          `json:"duration_seconds"`
}

// CallRecordWriter persists transcription output onto the owning call
// record row.
type CallRecordWriter interface {
	SaveTranscript(ctx context.Context, callRecordID string, transcript string, durationSeconds float64) error
}

// NotificationChannel sends one message over a specific channel (email,
// sms, push, webhook).
type NotificationChannel interface {
	// Channel names the channel this adapter serves.
	Channel() string

	// Send renders the template with data and delivers it to the target.
	Send(ctx context.Context, target string, template string, data map[string]string) (*NotificationResult, error)
}

// NotificationResult reports a delivery outcome.
type NotificationResult struct {
	Delivered bool   `json:"delivered"`
	Channel   string `json:"channel"`
	MessageID string `json:"message_id"`
}

// SyncDirection selects pull or push for a sync run.
type SyncDirection string

// Sync direction constants.
const (
	SyncPull SyncDirection = "pull"
	SyncPush SyncDirection = "push"
)

// SyncProvider exchanges records with an external CRM or calendar system.
type SyncProvider interface {
	// Provider names the external system.
	Provider() string

	// Sync pulls or pushes records of the resource type changed since the
	// given time. Per-item failures are reported in the result, not as an
	// overall error.
	Sync(ctx context.Context, resourceType string, direction SyncDirection, since time.Time) (*SyncOutcome, error)
}

// SyncItemError is one failed record in an otherwise successful sync run.
type SyncItemError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// SyncOutcome reports item counts and per-item errors for a sync run.
type SyncOutcome struct {
	Created int             `json:"created"`
	Updated int             `json:"updated"`
	Deleted int             `json:"deleted"`
	Errors  []SyncItemError `json:"errors,omitempty"`
}
