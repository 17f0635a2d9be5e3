// Package json persists chat transcripts as versioned JSON documents.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/hrchat"
)

const envelopeVersion = 1

// envelope is the v1 wire format for a persisted transcript.
type envelope struct {
	Version   int          `json:"version"`
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	AgentID   string       `json:"agent_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []messageDTO `json:"messages"`
}

// messageDTO mirrors hrchat.ChatMessage. The session ID is implied by the
// envelope and restored on load.
type messageDTO struct {
	ID              string    `json:"id"`
	Role            string    `json:"role"`
	Message         string    `json:"message"`
	IsSensitive     bool      `json:"is_sensitive,omitempty"`
	ParentMessageID *string   `json:"parent_message_id,omitempty"`
	ChildMessageID  *string   `json:"child_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MarshalTranscript serializes a Transcript to JSON in v1 envelope format.
func MarshalTranscript(t hrchat.Transcript) ([]byte, error) {
	if t.Session.ID == "" {
		return nil, fmt.Errorf("transcript has no session id: %w", hrchat.ErrValidation)
	}
	env := envelope{
		Version:   envelopeVersion,
		ID:        t.Session.ID,
		Title:     t.Session.Title,
		AgentID:   t.Session.AgentID,
		CreatedAt: t.Session.CreatedAt,
		UpdatedAt: t.Session.UpdatedAt,
		Messages:  make([]messageDTO, len(t.Messages)),
	}
	for i, msg := range t.Messages {
		if msg.ChatSessionID != "" && msg.ChatSessionID != t.Session.ID {
			return nil, fmt.Errorf("message %d: belongs to session %q: %w", i, msg.ChatSessionID, hrchat.ErrValidation)
		}
		env.Messages[i] = messageDTO{
			ID:              msg.ID,
			Role:            string(msg.Role),
			Message:         msg.Message,
			IsSensitive:     msg.IsSensitive,
			ParentMessageID: msg.ParentMessageID,
			ChildMessageID:  msg.ChildMessageID,
			CreatedAt:       msg.CreatedAt,
			UpdatedAt:       msg.UpdatedAt,
		}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalTranscript deserializes a Transcript from JSON in v1 envelope format.
func UnmarshalTranscript(data []byte) (hrchat.Transcript, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return hrchat.Transcript{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return hrchat.Transcript{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	msgs := make([]hrchat.ChatMessage, len(env.Messages))
	for i, dto := range env.Messages {
		msg := hrchat.ChatMessage{
			ID:              dto.ID,
			ChatSessionID:   env.ID,
			Role:            hrchat.Role(dto.Role),
			Message:         dto.Message,
			IsSensitive:     dto.IsSensitive,
			ParentMessageID: dto.ParentMessageID,
			ChildMessageID:  dto.ChildMessageID,
			CreatedAt:       dto.CreatedAt,
			UpdatedAt:       dto.UpdatedAt,
		}
		if err := msg.Validate(); err != nil {
			return hrchat.Transcript{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return hrchat.Transcript{
		Session: hrchat.ChatSession{
			ID:        env.ID,
			Title:     env.Title,
			AgentID:   env.AgentID,
			CreatedAt: env.CreatedAt,
			UpdatedAt: env.UpdatedAt,
		},
		Messages: msgs,
	}, nil
}

// Save writes a Transcript to a JSON file, creating parent directories as needed.
func Save(path string, t hrchat.Transcript) error {
	data, err := MarshalTranscript(t)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Transcript from a JSON file.
func Load(path string) (hrchat.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return hrchat.Transcript{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalTranscript(data)
}
