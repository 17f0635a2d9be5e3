package bubbletea

import (
	"errors"
	"fmt"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/hrchat"
	"github.com/fwojciec/hrchat/api"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders a failed streaming cycle inline in the conversation.
// Backend rejections and server error events get a headline naming the
// cause; anything else is shown as is.
type ErrorBlock struct {
	err    error
	styles Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(err error, styles Styles) *ErrorBlock {
	return &ErrorBlock{err: err, styles: styles}
}

func (b *ErrorBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	content := b.styles.Error.Render(Sanitize(describeError(b.err)))
	return lipgloss.NewStyle().Width(width).Render(content)
}

func describeError(err error) string {
	var serverErr *hrchat.ServerError
	var apiErr *api.Error
	switch {
	case errors.As(err, &serverErr):
		if serverErr.Event == "" || serverErr.Event == "error" {
			return "The assistant reported an error: " + serverErr.Message
		}
		return fmt.Sprintf("Unexpected %q event from the assistant: %s", serverErr.Event, serverErr.Message)
	case errors.As(err, &apiErr):
		headline := fmt.Sprintf("Backend error (HTTP %d)", apiErr.StatusCode)
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			headline = fmt.Sprintf("Not authorized (HTTP %d), check the token", apiErr.StatusCode)
		case http.StatusNotFound:
			headline = "Chat session not found (HTTP 404)"
		}
		if apiErr.Detail == "" {
			return headline
		}
		return headline + ": " + apiErr.Detail
	case errors.Is(err, hrchat.ErrIdleTimeout):
		return "No reply for too long, stopped waiting. The partial answer was kept."
	case errors.Is(err, hrchat.ErrUnexpectedEOF):
		return "The connection closed before the reply finished."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
