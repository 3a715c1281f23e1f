// Package handler implements the job handlers: one per job type, each a
// pure function over the payload that does its work through external
// adapters and classifies failures with domain error kinds.
package handler

import (
	"context"
	"encoding/json"

	"commandcenter/internal/application/common/slogger"
	"commandcenter/internal/domain/errors/domain"
	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
	"commandcenter/internal/port/outbound"
)

// TranscriptionPayload is the transcription job input.
type TranscriptionPayload struct {
	CallRecordID string `json:"call_record_id"`
	AudioURL     string `json:"audio_url"`
	Locale       string `json:"locale,omitempty"`
	Diarization  bool   `json:"diarization"`
}

// TranscriptionResult is the structured job result. The transcript text
// itself is persisted on the call record, not echoed back.
type TranscriptionResult struct {
	CallRecordID    string                    `json:"call_record_id"`
	DurationSeconds float64                   `json:"duration_seconds"`
	WordCount       int                       `json:"word_count"`
	Words           []outbound.TranscriptWord `json:"words,omitempty"`
	Speakers        []outbound.SpeakerSegment `json:"speakers,omitempty"`
}

// TranscriptionHandler transcribes call audio and persists the transcript
// onto the owning call record.
type TranscriptionHandler struct {
	transcriber outbound.Transcriber
	records     outbound.CallRecordWriter
}

// NewTranscriptionHandler creates the transcription job handler.
func NewTranscriptionHandler(transcriber outbound.Transcriber, records outbound.CallRecordWriter) *TranscriptionHandler {
	return &TranscriptionHandler{transcriber: transcriber, records: records}
}

// Type names the job type this handler serves.
func (h *TranscriptionHandler) Type() job.Type { return job.TypeTranscription }

// Handle transcribes the audio, saves the transcript and returns word and
// speaker metadata.
func (h *TranscriptionHandler) Handle(ctx context.Context, j job.Job, report inbound.ProgressFunc) (json.RawMessage, error) {
	var payload TranscriptionPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, domain.NewValidation("invalid transcription payload", err)
	}
	if payload.CallRecordID == "" {
		return nil, domain.NewValidation("call_record_id is required", nil)
	}
	if payload.AudioURL == "" {
		return nil, domain.NewValidation("audio_url is required", nil)
	}

	reportProgress(ctx, report, 10)

	result, err := h.transcriber.Transcribe(ctx, payload.AudioURL, outbound.TranscribeOptions{
		Locale:      payload.Locale,
		Diarization: payload.Diarization,
	})
	if err != nil {
		return nil, err
	}

	reportProgress(ctx, report, 70)

	if err := h.records.SaveTranscript(ctx, payload.CallRecordID, result.Transcript, result.DurationSeconds); err != nil {
		return nil, err
	}

	reportProgress(ctx, report, 100)
	slogger.Info(ctx, "Transcription persisted", slogger.Fields{
		"call_record_id":   payload.CallRecordID,
		"duration_seconds": result.DurationSeconds,
		"word_count":       len(result.Words),
	})

	return marshalResult(TranscriptionResult{
		CallRecordID:    payload.CallRecordID,
		DurationSeconds: result.DurationSeconds,
		WordCount:       len(result.Words),
		Words:           result.Words,
		Speakers:        result.Speakers,
	})
}

// reportProgress is best-effort: a failed progress write never fails the
// job.
func reportProgress(ctx context.Context, report inbound.ProgressFunc, percent int) {
	if report == nil {
		return
	}
	if err := report(ctx, percent); err != nil {
		slogger.Debug(ctx, "Progress update failed", slogger.Fields{
			"percent": percent,
			"error":   err.Error(),
		})
	}
}

func marshalResult(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, domain.NewTerminal("failed to marshal job result", err)
	}
	return data, nil
}
