package hrchat

import "context"

// Phase is the streaming phase of one chat session.
type Phase int

const (
	PhaseIdle            Phase = iota // No request in flight.
	PhasePending                      // Request accepted, awaiting first delta.
	PhaseStreaming                    // Receiving deltas.
	PhaseGeneratingTitle              // Server is synthesizing a session title.
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseStreaming:
		return "streaming"
	case PhaseGeneratingTitle:
		return "generating_title"
	default:
		return "unknown"
	}
}

// SessionState is a point-in-time copy of one session's streaming state.
type SessionState struct {
	Phase      Phase
	Text       string
	Cancelable bool
}

// StreamStore owns one streaming state entry per chat session and provides
// the only sanctioned transitions between phases.
//
// All operations except EnsureSession fail with ErrSessionNotFound for an
// unknown session. Behavior by operation:
//   - Begin starts a cycle: phase Pending, empty text, cancel stored. It
//     fails with ErrStreamInProgress until the previous cycle has run
//     Finish, even when that cycle was canceled or already completed.
//   - Apply runs the transition for one event. For EventStreamComplete it
//     returns the final message (event metadata plus accumulated text) and
//     true. For EventError it returns a *ServerError and changes nothing.
//   - Finish is the cleanup every cycle must end with, however it ended:
//     phase Idle, empty text, no handle.
//   - Cancel invokes the active handle and clears it. Phase and text settle
//     when the aborted cycle runs Finish.
type StreamStore interface {
	EnsureSession(id string)
	Begin(id string, cancel context.CancelFunc) error
	Apply(id string, evt Event) (ChatMessage, bool, error)
	Finish(id string) error
	Cancel(id string) error
	State(id string) (SessionState, error)
}
