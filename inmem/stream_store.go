package inmem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fwojciec/hrchat"
)

// Interface compliance check.
var _ hrchat.StreamStore = (*StreamStore)(nil)

// StreamStore is the per-session streaming state machine. Entries are
// created lazily by EnsureSession and live as long as the store.
//
// It is safe for concurrent use. Independent sessions may be driven from
// independent goroutines; each session expects a single writer.
type StreamStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	phase  hrchat.Phase
	text   strings.Builder
	cancel context.CancelFunc
	// busy is set by Begin and cleared once the cycle returns to idle
	// through Finish or SetPhase, so a canceled cycle still owns the
	// session until it has flushed.
	busy bool
}

// NewStreamStore creates an empty StreamStore.
func NewStreamStore() *StreamStore {
	return &StreamStore{sessions: make(map[string]*entry)}
}

// EnsureSession creates an idle entry for id if none exists.
func (s *StreamStore) EnsureSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = &entry{}
	}
}

// SetPhase sets the phase of session id. Entering PhasePending starts a new
// cycle and resets the accumulated text. Entering PhaseIdle clears the text
// and the cancellation handle.
func (s *StreamStore) SetPhase(id string, phase hrchat.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.setPhase(phase)
	if phase == hrchat.PhaseIdle {
		e.busy = false
	}
	return nil
}

// AppendDelta appends fragment to the accumulated text of session id.
func (s *StreamStore) AppendDelta(id, fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.text.WriteString(fragment)
	return nil
}

// SetCancel stores the cancellation handle of session id. A nil cancel
// clears it.
func (s *StreamStore) SetCancel(id string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.cancel = cancel
	return nil
}

// Begin starts a streaming cycle for session id. It fails with
// [hrchat.ErrStreamInProgress] until the previous cycle has called Finish,
// even when that cycle was already canceled.
func (s *StreamStore) Begin(id string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	if e.busy || e.cancel != nil {
		return fmt.Errorf("session %q: %w", id, hrchat.ErrStreamInProgress)
	}
	e.setPhase(hrchat.PhasePending)
	e.cancel = cancel
	e.busy = true
	return nil
}

// Apply runs the transition for evt on session id. See [hrchat.StreamStore].
func (s *StreamStore) Apply(id string, evt hrchat.Event) (hrchat.ChatMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return hrchat.ChatMessage{}, false, err
	}

	switch ev := evt.(type) {
	case hrchat.EventMetadata:
		e.setPhase(hrchat.PhasePending)
	case hrchat.EventDelta:
		if e.text.Len() == 0 {
			e.phase = hrchat.PhaseStreaming
		}
		e.text.WriteString(ev.Text)
	case hrchat.EventTitleGeneration:
		e.phase = hrchat.PhaseGeneratingTitle
	case hrchat.EventStreamComplete:
		msg := ev.Message
		msg.Message = e.text.String()
		e.setPhase(hrchat.PhaseIdle)
		return msg, true, nil
	case hrchat.EventError:
		return hrchat.ChatMessage{}, false, &hrchat.ServerError{Event: ev.Event, Message: ev.Message}
	default:
		return hrchat.ChatMessage{}, false, fmt.Errorf("unknown event type %T", evt)
	}
	return hrchat.ChatMessage{}, false, nil
}

// Finish returns session id to idle with no text and no handle.
func (s *StreamStore) Finish(id string) error {
	return s.SetPhase(id, hrchat.PhaseIdle)
}

// Cancel invokes and clears the cancellation handle of session id. The
// handle runs outside the lock so it may call back into the store.
func (s *StreamStore) Cancel(id string) error {
	s.mu.Lock()
	e, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	cancel := e.cancel
	if cancel == nil {
		s.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, hrchat.ErrNoActiveStream)
	}
	e.cancel = nil
	s.mu.Unlock()

	cancel()
	return nil
}

// Phase returns the phase of session id.
func (s *StreamStore) Phase(id string) (hrchat.Phase, error) {
	st, err := s.State(id)
	return st.Phase, err
}

// Text returns the text accumulated so far in the current cycle.
func (s *StreamStore) Text(id string) (string, error) {
	st, err := s.State(id)
	return st.Text, err
}

// State returns a copy of the state of session id.
func (s *StreamStore) State(id string) (hrchat.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return hrchat.SessionState{}, err
	}
	return hrchat.SessionState{
		Phase:      e.phase,
		Text:       e.text.String(),
		Cancelable: e.cancel != nil,
	}, nil
}

// lookup must be called with mu held.
func (s *StreamStore) lookup(id string) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, hrchat.ErrSessionNotFound)
	}
	return e, nil
}

func (e *entry) setPhase(phase hrchat.Phase) {
	switch phase {
	case hrchat.PhasePending:
		e.text.Reset()
	case hrchat.PhaseIdle:
		e.text.Reset()
		e.cancel = nil
	}
	e.phase = phase
}
