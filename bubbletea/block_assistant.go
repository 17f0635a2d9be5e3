package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

var _ MessageBlock = (*AssistantBlock)(nil)

// DefaultMarkdownStyle is the glamour style used for assistant replies.
const DefaultMarkdownStyle = "dark"

// AssistantBlock renders streamed assistant text as markdown. The rendered
// output is cached per width until more text arrives.
type AssistantBlock struct {
	content     strings.Builder
	style       string
	styles      Styles
	interrupted bool

	renderers map[int]*glamour.TermRenderer
	cache     map[int]string
}

// NewAssistantBlock creates a block for streaming assistant text rendered
// with the named glamour style.
func NewAssistantBlock(style string, styles Styles) *AssistantBlock {
	if style == "" {
		style = DefaultMarkdownStyle
	}
	return &AssistantBlock{
		style:     style,
		styles:    styles,
		renderers: make(map[int]*glamour.TermRenderer),
		cache:     make(map[int]string),
	}
}

// Append adds a delta fragment.
func (b *AssistantBlock) Append(text string) {
	if text == "" {
		return
	}
	b.content.WriteString(Sanitize(text))
	clear(b.cache)
}

// Interrupt marks the reply as stopped before completion.
func (b *AssistantBlock) Interrupt() {
	b.interrupted = true
	clear(b.cache)
}

// Text returns the raw accumulated text.
func (b *AssistantBlock) Text() string {
	return b.content.String()
}

func (b *AssistantBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *AssistantBlock) View(width int) string {
	if width <= 0 {
		return ""
	}
	if cached, ok := b.cache[width]; ok {
		return cached
	}
	raw := b.content.String()
	if hasUnclosedFence(raw) {
		// Close the fence only for rendering so partial code displays safely.
		raw += "\n```"
	}
	out := strings.Trim(b.render(raw, width), "\n")
	if b.interrupted {
		marker := b.styles.Muted.Render("(stopped)")
		if out == "" {
			out = marker
		} else {
			out += "\n" + marker
		}
	}
	b.cache[width] = out
	return out
}

func (b *AssistantBlock) render(raw string, width int) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	r, ok := b.renderers[width]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle(b.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return raw
		}
		b.renderers[width] = r
	}
	out, err := r.Render(raw)
	if err != nil {
		return raw
	}
	return out
}

// hasUnclosedFence reports whether s has an odd number of "```" markers.
// Triple backticks inside inline code spans are miscounted.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
