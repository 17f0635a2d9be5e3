package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/hrchat"
	"github.com/mattn/go-runewidth"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	send          SendFunc
	store         hrchat.StreamStore
	messages      MessageSource
	session       hrchat.ChatSession
	parentID      *string
	markdownStyle string
	styles        Styles
	spinner       spinner.Model

	blocks   []MessageBlock
	active   *AssistantBlock
	lastUser *UserMessageBlock

	running     bool
	interrupted bool
	cancel      context.CancelFunc
	eventCh     chan hrchat.Event
	doneCh      chan error
	err         error
	ready       bool
}

// Option configures a [Model].
type Option func(*Model)

// WithMarkdownStyle sets the glamour style for assistant replies.
func WithMarkdownStyle(style string) Option {
	return func(m *Model) { m.markdownStyle = style }
}

// WithMessages threads each request off the last message recorded in src
// once a cycle ends, including replies cut short by a stop.
func WithMessages(src MessageSource) Option {
	return func(m *Model) { m.messages = src }
}

// New creates a TUI Model for the transcript's session. Prior messages are
// rendered on the first resize. The store is consulted for the streaming
// phase and used to cancel a running cycle.
func New(send SendFunc, store hrchat.StreamStore, transcript hrchat.Transcript, theme hrchat.Theme, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask HR anything..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		Input:         ti,
		send:          send,
		store:         store,
		session:       transcript.Session,
		markdownStyle: DefaultMarkdownStyle,
		styles:        NewStyles(theme),
		spinner:       sp,
	}
	for _, o := range opts {
		o(&m)
	}
	for _, msg := range transcript.Messages {
		switch msg.Role {
		case hrchat.RoleUser:
			b := NewUserMessageBlock(msg.Message, m.styles)
			if msg.IsSensitive {
				b.MarkSensitive()
			}
			m.blocks = append(m.blocks, b)
		case hrchat.RoleAssistant:
			b := NewAssistantBlock(m.markdownStyle, m.styles)
			b.Append(msg.Message)
			m.blocks = append(m.blocks, b)
		}
		if msg.ID != "" {
			id := msg.ID
			m.parentID = &id
		}
	}
	return m
}

// Running returns whether a streaming cycle is in flight.
func (m Model) Running() bool { return m.running }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Title returns the session title, updated by title events.
func (m Model) Title() string { return m.session.Title }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StreamEventMsg:
		m = m.processEvent(msg.Event)
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case CycleDoneMsg:
		if m.interrupted && m.active != nil {
			m.active.Interrupt()
		}
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
		}
		if m.cancel != nil {
			m.cancel()
		}
		m.running = false
		m.interrupted = false
		m.active = nil
		m.cancel = nil
		m = m.threadFromHistory()
		m.eventCh = nil
		m.doneCh = nil
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		cmd := m.Input.Focus()
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	// Viewport always receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusHeight - borderHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			return m.stop(), nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submitInput(text)
	}

	// When idle, pass keys to both input (for typing) and viewport
	// (for scrolling). Character keys only go to the input.
	if !m.running {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// stop cancels the running cycle through the store. Before the cycle has
// registered its handle the run context is cancelled directly.
func (m Model) stop() Model {
	m.interrupted = true
	if err := m.store.Cancel(m.session.ID); err != nil {
		if !errors.Is(err, hrchat.ErrNoActiveStream) && !errors.Is(err, hrchat.ErrSessionNotFound) {
			m.err = err
		}
		if m.cancel != nil {
			m.cancel()
		}
	}
	return m
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil

	m.lastUser = NewUserMessageBlock(text, m.styles)
	m.blocks = append(m.blocks, m.lastUser)
	m.active = nil
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	req := hrchat.SendMessageRequest{
		ChatSessionID:   m.session.ID,
		Message:         text,
		ParentMessageID: m.parentID,
		AgentID:         m.session.AgentID,
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.eventCh = make(chan hrchat.Event, 256)
	m.doneCh = make(chan error, 1)
	m.running = true

	m.Input.Blur()

	return m, tea.Batch(
		startCycle(m.send, ctx, req, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
		m.spinner.Tick,
	)
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

func (m Model) processEvent(evt hrchat.Event) Model {
	switch e := evt.(type) {
	case hrchat.EventMetadata:
		if e.Message.IsSensitive && m.lastUser != nil {
			m.lastUser.MarkSensitive()
		}
		if e.Message.ID != "" {
			id := e.Message.ID
			m.parentID = &id
		}
	case hrchat.EventDelta:
		if m.active == nil {
			m.active = NewAssistantBlock(m.markdownStyle, m.styles)
			m.blocks = append(m.blocks, m.active)
		}
		m.active.Append(e.Text)
	case hrchat.EventTitleGeneration:
		m.session.Title = Sanitize(e.Title)
	case hrchat.EventStreamComplete:
		if e.Message.ID != "" {
			id := e.Message.ID
			m.parentID = &id
		}
	}
	return m
}

// threadFromHistory points the next request at the newest recorded message.
func (m Model) threadFromHistory() Model {
	if m.messages == nil {
		return m
	}
	msgs := m.messages.Messages(m.session.ID)
	if len(msgs) == 0 || msgs[len(msgs)-1].ID == "" {
		return m
	}
	id := msgs[len(msgs)-1].ID
	m.parentID = &id
	return m
}

func (m Model) statusLine() string {
	var parts []string
	if title := m.truncatedTitle(); title != "" {
		parts = append(parts, m.styles.Accent.Render(title))
	}
	switch {
	case m.err != nil:
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.running:
		parts = append(parts, m.styles.Muted.Render(m.progress()))
	default:
		parts = append(parts, m.styles.Muted.Render("Enter to send, Ctrl+C to quit"))
	}
	return strings.Join(parts, " ")
}

func (m Model) progress() string {
	phase := hrchat.PhasePending
	if state, err := m.store.State(m.session.ID); err == nil {
		phase = state.Phase
	}
	switch phase {
	case hrchat.PhaseStreaming:
		return "Streaming... Ctrl+C to stop"
	case hrchat.PhaseGeneratingTitle:
		return m.spinner.View() + " Naming chat..."
	default:
		return m.spinner.View() + " Waiting for reply... Ctrl+C to stop"
	}
}

func (m Model) truncatedTitle() string {
	if m.session.Title == "" {
		return ""
	}
	limit := m.Viewport.Width / 3
	if limit < 10 {
		limit = 10
	}
	return runewidth.Truncate(m.session.Title, limit, "…")
}

// startCycle runs one streaming cycle in a goroutine and signals completion.
func startCycle(send SendFunc, ctx context.Context, req hrchat.SendMessageRequest, eventCh chan<- hrchat.Event, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := send(ctx, req, func(e hrchat.Event) {
			select {
			case eventCh <- e:
			case <-ctx.Done():
			}
		})
		close(eventCh)
		doneCh <- err
		return nil
	}
}

// listenForEvent waits for the next event from the channel.
// When the channel closes, it reads the error from doneCh and returns CycleDoneMsg.
func listenForEvent(ch <-chan hrchat.Event, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			err := <-doneCh
			return CycleDoneMsg{Err: err}
		}
		return StreamEventMsg{Event: evt}
	}
}
