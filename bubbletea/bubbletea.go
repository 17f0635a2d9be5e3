// Package bubbletea provides a Bubble Tea TUI for one chat session.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/hrchat"
)

// SendFunc runs one streaming cycle for req. The onEvent callback is called
// for each decoded event. The function blocks until the cycle ends.
type SendFunc func(ctx context.Context, req hrchat.SendMessageRequest, onEvent func(hrchat.Event)) error

// MessageSource lists the messages recorded for a session, oldest first.
type MessageSource interface {
	Messages(sessionID string) []hrchat.ChatMessage
}

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. When ctx is cancelled the program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// StreamEventMsg wraps a streaming event for delivery to the Bubble Tea model.
type StreamEventMsg struct {
	Event hrchat.Event
}

// CycleDoneMsg signals that a streaming cycle has ended.
type CycleDoneMsg struct {
	Err error
}
