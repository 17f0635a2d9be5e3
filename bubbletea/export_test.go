package bubbletea

import "context"

// RenderContent exports renderContent for testing.
func RenderContent(m Model) string {
	return m.renderContent()
}

// StatusLine exports statusLine for testing.
func StatusLine(m Model) string {
	return m.statusLine()
}

// ParentID returns the parent message ID the next request will carry.
func ParentID(m Model) string {
	if m.parentID == nil {
		return ""
	}
	return *m.parentID
}

// SetRunning puts the model in a running state with the given cancel
// function standing in for the run context.
func SetRunning(m Model, cancel context.CancelFunc) Model {
	m.running = true
	m.cancel = cancel
	return m
}
