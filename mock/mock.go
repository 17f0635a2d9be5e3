// Package mock provides test doubles for hrchat interfaces using function fields.
package mock

import (
	"context"
	"io"

	"github.com/fwojciec/hrchat"
)

// Interface compliance checks.
var (
	_ hrchat.Transport   = (*Transport)(nil)
	_ hrchat.MessageList = (*MessageList)(nil)
	_ hrchat.SessionList = (*SessionList)(nil)
)

// Transport is a test double for hrchat.Transport.
// Set SendMessageFn before calling SendMessage.
type Transport struct {
	SendMessageFn func(ctx context.Context, req hrchat.SendMessageRequest) (io.ReadCloser, error)
}

// SendMessage delegates to SendMessageFn.
func (t *Transport) SendMessage(ctx context.Context, req hrchat.SendMessageRequest) (io.ReadCloser, error) {
	return t.SendMessageFn(ctx, req)
}

// MessageList is a test double for hrchat.MessageList.
// Set AppendMessageFn before calling AppendMessage.
type MessageList struct {
	AppendMessageFn func(ctx context.Context, msg hrchat.ChatMessage) error
}

// AppendMessage delegates to AppendMessageFn.
func (l *MessageList) AppendMessage(ctx context.Context, msg hrchat.ChatMessage) error {
	return l.AppendMessageFn(ctx, msg)
}

// SessionList is a test double for hrchat.SessionList.
// RenameSessionFn is nil-safe: most streams never carry a title event.
type SessionList struct {
	RenameSessionFn func(ctx context.Context, sessionID, title string) error
}

// RenameSession delegates to RenameSessionFn. Returns nil when RenameSessionFn is not set.
func (l *SessionList) RenameSession(ctx context.Context, sessionID, title string) error {
	if l.RenameSessionFn == nil {
		return nil
	}
	return l.RenameSessionFn(ctx, sessionID, title)
}
