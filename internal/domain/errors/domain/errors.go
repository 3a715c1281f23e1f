// Package domain provides domain-specific error definitions and utilities.
//
// Errors carry a Kind that the worker pool uses as the single decision point
// for retry vs. terminal failure. Handlers classify, the pool decides.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry decisions and observability.
type Kind string

const (
	// KindValidation marks malformed payloads and missing required fields.
	// Never retried.
	KindValidation Kind = "validation"
	// KindTransient marks provider timeouts, 5xx responses and rate limits.
	// Retried up to the queue's max attempts.
	KindTransient Kind = "transient"
	// KindTerminal marks provider failures that retrying cannot fix, such as
	// bad credentials or malformed responses.
	KindTerminal Kind = "terminal"
	// KindNotFound marks a missing entity or source vector.
	KindNotFound Kind = "not_found"
	// KindConfiguration marks missing or invalid configuration, such as no
	// embedding provider configured. Fails fast, never retried.
	KindConfiguration Kind = "configuration"
	// KindStall marks a job whose lease expired without ack or nack. An
	// observability signal, not surfaced to callers.
	KindStall Kind = "stall"
)

// Job-related errors.
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrQueueNotFound = errors.New("queue not found")
)

// Entity-related errors.
var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrVectorMissing  = errors.New("entity has no stored vector")
)

// General domain errors.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNoProviderConfigured = errors.New("no embedding provider configured")
)

// Error is a classified error carrying a Kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a failed operation with this error may succeed
// on a later attempt.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// NewValidation creates a non-retryable validation error.
func NewValidation(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

// NewTransient creates a retryable provider error.
func NewTransient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

// NewTerminal creates a non-retryable provider error.
func NewTerminal(msg string, err error) *Error {
	return &Error{Kind: KindTerminal, Message: msg, Err: err}
}

// NewNotFound creates an error for a missing entity or vector.
func NewNotFound(msg string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: err}
}

// NewConfiguration creates a fail-fast configuration error.
func NewConfiguration(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, Err: err}
}

// NewStall creates a stall signal for a job whose lease expired.
func NewStall(msg string) *Error {
	return &Error{Kind: KindStall, Message: msg}
}

// KindOf extracts the Kind from an error chain. Unclassified errors default
// to KindTerminal so an unknown failure is never retried blindly.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTerminal
}

// IsRetryable reports whether the error chain contains a retryable
// classification.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}
