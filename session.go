package hrchat

import "time"

// ChatSession is an entry of the session list shown to the user.
type ChatSession struct {
	ID        string
	Title     string
	AgentID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transcript is a session together with its message history, the unit
// persisted between runs.
type Transcript struct {
	Session  ChatSession
	Messages []ChatMessage
}
