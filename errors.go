package hrchat

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrSessionNotFound indicates an operation on a session that was never
	// passed to EnsureSession.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveStream indicates Cancel was called with no cancellation
	// handle in place.
	ErrNoActiveStream = errors.New("no active stream")

	// ErrStreamInProgress indicates a new cycle was started for a session
	// that already holds a cancellation handle.
	ErrStreamInProgress = errors.New("stream already in progress")

	// ErrIdleTimeout indicates a stream was aborted because no chunk arrived
	// within the configured idle timeout.
	ErrIdleTimeout = errors.New("stream idle timeout")

	// ErrUnexpectedEOF indicates the stream ended before stream_complete.
	ErrUnexpectedEOF = errors.New("unexpected end of stream")
)

// ServerError is a well-formed error event reported by the server.
type ServerError struct {
	Event   string // raw event name; empty when the chunk had none
	Message string
}

func (e *ServerError) Error() string {
	if e.Event == "" || e.Event == "error" {
		return fmt.Sprintf("server error: %s", e.Message)
	}
	return fmt.Sprintf("server error (event %q): %s", e.Event, e.Message)
}
