package inmem

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/hrchat"
)

// Interface compliance check.
var _ hrchat.SessionList = (*SessionList)(nil)

// SessionList keeps the chat sessions known to the client.
type SessionList struct {
	mu       sync.Mutex
	sessions map[string]hrchat.ChatSession
	now      func() time.Time
}

// NewSessionList creates an empty SessionList.
func NewSessionList() *SessionList {
	return &SessionList{
		sessions: make(map[string]hrchat.ChatSession),
		now:      time.Now,
	}
}

// CreateSession adds s to the list, overwriting any entry with the same ID.
func (l *SessionList) CreateSession(s hrchat.ChatSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[s.ID] = s
}

// Session returns the session with the given id.
func (l *SessionList) Session(id string) (hrchat.ChatSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	if !ok {
		return hrchat.ChatSession{}, fmt.Errorf("session %q: %w", id, hrchat.ErrSessionNotFound)
	}
	return s, nil
}

// Sessions returns all sessions, most recently updated first.
func (l *SessionList) Sessions() []hrchat.ChatSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]hrchat.ChatSession, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b hrchat.ChatSession) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// RenameSession patches the display title of a session.
func (l *SessionList) RenameSession(ctx context.Context, sessionID, title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %q: %w", sessionID, hrchat.ErrSessionNotFound)
	}
	s.Title = title
	s.UpdatedAt = l.now()
	l.sessions[sessionID] = s
	return nil
}
