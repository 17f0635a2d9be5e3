package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*UserMessageBlock)(nil)

// UserMessageBlock renders a user message with a "> " prefix. Messages the
// backend flagged as sensitive carry a muted marker.
type UserMessageBlock struct {
	text      string
	sensitive bool
	styles    Styles
}

// NewUserMessageBlock creates a UserMessageBlock.
func NewUserMessageBlock(text string, styles Styles) *UserMessageBlock {
	return &UserMessageBlock{text: Sanitize(text), styles: styles}
}

// MarkSensitive flags the message as sensitive.
func (b *UserMessageBlock) MarkSensitive() {
	b.sensitive = true
}

func (b *UserMessageBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *UserMessageBlock) View(width int) string {
	content := b.styles.UserMsg.Render("> ") + b.text
	if b.sensitive {
		content += " " + b.styles.Muted.Render("(sensitive)")
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}
