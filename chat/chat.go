// Package chat drives one streaming cycle per sent message: it issues the
// request through a [hrchat.Transport], decodes the event stream and feeds
// each event to a [hrchat.StreamStore], handing finished messages to the
// message and session lists.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fwojciec/hrchat"
	"github.com/fwojciec/hrchat/sse"
	"github.com/google/uuid"
)

// Loop runs streaming cycles against a transport.
type Loop struct {
	transport hrchat.Transport
	store     hrchat.StreamStore
	messages  hrchat.MessageList
	sessions  hrchat.SessionList

	decoder     *sse.Decoder
	onEvent     func(sessionID string, evt hrchat.Event)
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// Option configures a [Loop].
type Option func(*Loop)

// WithEventHandler sets a callback that receives each decoded event after
// the store has applied it. It runs on the goroutine calling Send.
func WithEventHandler(h func(sessionID string, evt hrchat.Event)) Option {
	return func(l *Loop) { l.onEvent = h }
}

// WithDecoder sets the chunk decoder. Defaults to a strict decoder.
func WithDecoder(d *sse.Decoder) Option {
	return func(l *Loop) { l.decoder = d }
}

// WithIdleTimeout aborts a cycle when no chunk arrives for d. The abort is
// cleaned up like a cancellation and Send returns hrchat.ErrIdleTimeout.
// Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(l *Loop) { l.idleTimeout = d }
}

// WithLogger sets the structured logger. Defaults to discarding.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// New creates a Loop.
func New(transport hrchat.Transport, store hrchat.StreamStore, messages hrchat.MessageList, sessions hrchat.SessionList, opts ...Option) *Loop {
	l := &Loop{
		transport: transport,
		store:     store,
		messages:  messages,
		sessions:  sessions,
		decoder:   sse.NewDecoder(),
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Cancel stops the active cycle of a session. Send then preserves the
// partial answer and returns nil.
func (l *Loop) Cancel(sessionID string) error {
	return l.store.Cancel(sessionID)
}

// Send runs one streaming cycle for req and blocks until it ends.
//
// However the cycle ends, the session is left idle with no text and no
// cancellation handle. Return values by outcome:
//   - stream_complete received: nil.
//   - Cancel called: nil, after the partial answer is appended as an
//     assistant message.
//   - Parent context cancelled: the context error, after the same flush.
//   - Idle timeout: hrchat.ErrIdleTimeout, after the same flush.
//   - Server error event: *hrchat.ServerError.
//   - Decode, transport or collaborator failure: the wrapped error. No
//     partial message is synthesized.
func (l *Loop) Send(ctx context.Context, req hrchat.SendMessageRequest) error {
	return l.Stream(ctx, req, nil)
}

// Stream is [Loop.Send] with an extra callback that receives this cycle's
// events after the loop-wide handler.
func (l *Loop) Stream(ctx context.Context, req hrchat.SendMessageRequest, onEvent func(hrchat.Event)) (err error) {
	if err := req.Validate(); err != nil {
		return err
	}
	id := req.ChatSessionID
	log := l.logger.With("session_id", id)

	l.store.EnsureSession(id)

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := l.store.Begin(id, cancel); err != nil {
		return err
	}
	defer func() {
		if ferr := l.store.Finish(id); ferr != nil && err == nil {
			err = ferr
		}
	}()

	var timedOut atomic.Bool
	touch := func() {}
	if l.idleTimeout > 0 {
		timer := time.AfterFunc(l.idleTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer timer.Stop()
		touch = func() { timer.Reset(l.idleTimeout) }
	}

	log.Debug("stream started")
	c := &cycle{id: id, onEvent: onEvent}
	err = l.consume(ctx, c, req, touch)
	if err == nil {
		log.Debug("stream completed")
		return nil
	}

	if ctx.Err() == nil {
		log.Error("stream failed", "error", err)
		return err
	}

	// Aborted: keep whatever answer had arrived.
	if ferr := l.flush(context.WithoutCancel(parent), c); ferr != nil {
		return ferr
	}
	switch {
	case timedOut.Load():
		log.Warn("stream idle timeout", "timeout", l.idleTimeout)
		return fmt.Errorf("session %q: %w", id, hrchat.ErrIdleTimeout)
	case parent.Err() != nil:
		log.Info("stream aborted", "reason", parent.Err())
		return parent.Err()
	default:
		log.Info("stream cancelled")
		return nil
	}
}

// cycle carries what one streaming cycle learns along the way.
type cycle struct {
	id            string
	onEvent       func(hrchat.Event)
	userMessageID string
}

func (l *Loop) consume(ctx context.Context, c *cycle, req hrchat.SendMessageRequest, touch func()) error {
	body, err := l.transport.SendMessage(ctx, req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer body.Close()

	r := sse.NewReader(body)
	completed := false
	for {
		chunk, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		touch()

		evt, err := l.decoder.Decode(chunk)
		if err != nil {
			return err
		}
		final, _, err := l.store.Apply(c.id, evt)
		if err != nil {
			return err
		}
		if l.onEvent != nil {
			l.onEvent(c.id, evt)
		}
		if c.onEvent != nil {
			c.onEvent(evt)
		}

		switch e := evt.(type) {
		case hrchat.EventMetadata:
			msg := normalize(e.Message, c.id, hrchat.RoleUser)
			c.userMessageID = msg.ID
			if err := l.messages.AppendMessage(ctx, msg); err != nil {
				return fmt.Errorf("append user message: %w", err)
			}
		case hrchat.EventTitleGeneration:
			if err := l.sessions.RenameSession(ctx, c.id, e.Title); err != nil {
				return fmt.Errorf("rename session: %w", err)
			}
		case hrchat.EventStreamComplete:
			completed = true
			if err := l.messages.AppendMessage(ctx, normalize(final, c.id, hrchat.RoleAssistant)); err != nil {
				return fmt.Errorf("append assistant message: %w", err)
			}
		}
	}
	if !completed {
		return fmt.Errorf("session %q: %w", c.id, hrchat.ErrUnexpectedEOF)
	}
	return nil
}

// flush appends the text accumulated so far as a terminal assistant
// message. Nothing is appended when no text arrived.
func (l *Loop) flush(ctx context.Context, c *cycle) error {
	st, err := l.store.State(c.id)
	if err != nil {
		return err
	}
	if st.Text == "" {
		return nil
	}
	now := l.now()
	msg := hrchat.ChatMessage{
		ID:            l.newID(),
		ChatSessionID: c.id,
		Role:          hrchat.RoleAssistant,
		Message:       st.Text,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if c.userMessageID != "" {
		parent := c.userMessageID
		msg.ParentMessageID = &parent
	}
	if err := l.messages.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append partial message: %w", err)
	}
	return nil
}

// normalize fills fields the server may omit from echoed records.
func normalize(msg hrchat.ChatMessage, sessionID string, role hrchat.Role) hrchat.ChatMessage {
	if msg.ChatSessionID == "" {
		msg.ChatSessionID = sessionID
	}
	if msg.Role == "" {
		msg.Role = role
	}
	return msg
}
