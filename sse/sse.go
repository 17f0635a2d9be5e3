// Package sse decodes the chat backend's server-sent event stream into
// [hrchat.Event] values.
//
// The wire format is a sequence of event groups separated by blank lines:
//
//	event: delta
//	data: {"c": "Hel"}
//
// The data of a group is a JSON envelope whose "c" key holds the payload. The
// server may split one envelope across several data lines.
// [Reader] splits a response body into raw chunks at group boundaries and
// [Decoder] turns one raw chunk into exactly one event.
package sse

import "errors"

// Event names recognized on the wire.
const (
	EventMetadata        = "metadata"
	EventDelta           = "delta"
	EventTitleGeneration = "title_generation"
	EventStreamComplete  = "stream_complete"
	EventError           = "error"
)

// ErrDecode indicates a chunk could not be decoded: a data line is missing,
// is not valid JSON after any repair step, or carries the wrong payload type.
var ErrDecode = errors.New("sse: decode error")
