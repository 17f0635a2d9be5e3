package hrchat

import "fmt"

// Validate checks universal constraints on SendMessageRequest.
func (r SendMessageRequest) Validate() error {
	if r.ChatSessionID == "" {
		return fmt.Errorf("chat_session_id is required: %w", ErrValidation)
	}
	if r.Message == "" {
		return fmt.Errorf("message must not be empty: %w", ErrValidation)
	}
	return nil
}

// Validate checks that a message has an identity and a known role.
func (m ChatMessage) Validate() error {
	if m.ChatSessionID == "" {
		return fmt.Errorf("chat_session_id is required: %w", ErrValidation)
	}
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("unknown role %q: %w", m.Role, ErrValidation)
	}
}
