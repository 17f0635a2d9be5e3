package hrchat

import "time"

// ChatMessage is a message record persisted by the backend.
type ChatMessage struct {
	ID              string    `json:"id"`
	ChatSessionID   string    `json:"chat_session_id"`
	Role            Role      `json:"role"`
	Message         string    `json:"message"`
	IsSensitive     bool      `json:"is_sensitive"`
	ParentMessageID *string   `json:"parent_message_id,omitempty"`
	ChildMessageID  *string   `json:"child_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SendMessageRequest is the payload that starts one streaming cycle.
type SendMessageRequest struct {
	ChatSessionID   string  `json:"chat_session_id"`
	Message         string  `json:"message"`
	ParentMessageID *string `json:"parent_message_id,omitempty"`
	AgentID         string  `json:"agent_id,omitempty"`
}
