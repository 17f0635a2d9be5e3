package inmem

import (
	"context"
	"slices"
	"sync"

	"github.com/fwojciec/hrchat"
)

// Interface compliance check.
var _ hrchat.MessageList = (*MessageList)(nil)

// MessageList keeps an ordered list of messages per chat session.
type MessageList struct {
	mu       sync.Mutex
	messages map[string][]hrchat.ChatMessage
}

// NewMessageList creates an empty MessageList.
func NewMessageList() *MessageList {
	return &MessageList{messages: make(map[string][]hrchat.ChatMessage)}
}

// AppendMessage validates msg and appends it to its session's list.
func (l *MessageList) AppendMessage(ctx context.Context, msg hrchat.ChatMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[msg.ChatSessionID] = append(l.messages[msg.ChatSessionID], msg)
	return nil
}

// Load replaces the messages of a session, e.g. from a saved transcript.
func (l *MessageList) Load(sessionID string, msgs []hrchat.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[sessionID] = slices.Clone(msgs)
}

// Messages returns a copy of the messages of a session in append order.
func (l *MessageList) Messages(sessionID string) []hrchat.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.messages[sessionID])
}
