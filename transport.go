package hrchat

import (
	"context"
	"io"
)

// Transport issues a send-message request and returns the server-sent
// event body. Cancellation flows through ctx: cancelling it aborts reads
// from the returned body.
type Transport interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (io.ReadCloser, error)
}

// MessageList is the externally-owned ordered list of chat messages.
type MessageList interface {
	AppendMessage(ctx context.Context, msg ChatMessage) error
}

// SessionList is the externally-owned list of chat sessions.
type SessionList interface {
	RenameSession(ctx context.Context, sessionID, title string) error
}
