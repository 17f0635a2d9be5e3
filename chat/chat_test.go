package chat_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/hrchat"
	"github.com/fwojciec/hrchat/chat"
	"github.com/fwojciec/hrchat/inmem"
	"github.com/fwojciec/hrchat/mock"
	"github.com/fwojciec/hrchat/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

func metadataFrame(sessionID, messageID string) string {
	return frame("metadata", fmt.Sprintf(`{"c": {"id": %q, "chat_session_id": %q, "role": "user", "message": "hi"}}`, messageID, sessionID))
}

func deltaFrame(text string) string {
	return frame("delta", fmt.Sprintf(`{"c": %q}`, text))
}

func completeFrame(sessionID, messageID, parentID string) string {
	return frame("stream_complete", fmt.Sprintf(`{"c": {"id": %q, "chat_session_id": %q, "role": "assistant", "parent_message_id": %q}}`, messageID, sessionID, parentID))
}

// staticTransport returns a transport that answers every request with body.
func staticTransport(body string) *mock.Transport {
	return &mock.Transport{
		SendMessageFn: func(_ context.Context, _ hrchat.SendMessageRequest) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

// pipeTransport returns a transport whose body is fed by the returned
// writer. Cancelling the request context fails pending reads the way an
// aborted HTTP response body does.
func pipeTransport() (*mock.Transport, *io.PipeWriter) {
	pr, pw := io.Pipe()
	tr := &mock.Transport{
		SendMessageFn: func(ctx context.Context, _ hrchat.SendMessageRequest) (io.ReadCloser, error) {
			go func() {
				<-ctx.Done()
				pw.CloseWithError(ctx.Err())
			}()
			return pr, nil
		},
	}
	return tr, pw
}

type fixture struct {
	store    *inmem.StreamStore
	messages *inmem.MessageList
	sessions *inmem.SessionList
}

func newFixture(sessionIDs ...string) fixture {
	f := fixture{
		store:    inmem.NewStreamStore(),
		messages: inmem.NewMessageList(),
		sessions: inmem.NewSessionList(),
	}
	for _, id := range sessionIDs {
		f.sessions.CreateSession(hrchat.ChatSession{ID: id, Title: "New chat"})
	}
	return f
}

func (f fixture) loop(tr hrchat.Transport, opts ...chat.Option) *chat.Loop {
	return chat.New(tr, f.store, f.messages, f.sessions, opts...)
}

func (f fixture) requireIdle(t *testing.T, id string) {
	t.Helper()
	st, err := f.store.State(id)
	require.NoError(t, err)
	assert.Equal(t, hrchat.SessionState{Phase: hrchat.PhaseIdle}, st)
}

func assistantMessages(msgs []hrchat.ChatMessage) []hrchat.ChatMessage {
	var out []hrchat.ChatMessage
	for _, m := range msgs {
		if m.Role == hrchat.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func request(sessionID string) hrchat.SendMessageRequest {
	return hrchat.SendMessageRequest{ChatSessionID: sessionID, Message: "hi"}
}

func TestLoop_Send_NormalCycle(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	body := metadataFrame("S", "u1") +
		deltaFrame("Hello") +
		deltaFrame(" world") +
		deltaFrame("!") +
		frame("title_generation", `{"c": "Greeting"}`) +
		completeFrame("S", "a1", "u1")

	var phases []hrchat.Phase
	loop := f.loop(staticTransport(body), chat.WithEventHandler(func(id string, _ hrchat.Event) {
		st, err := f.store.State(id)
		require.NoError(t, err)
		phases = append(phases, st.Phase)
	}))

	require.NoError(t, loop.Send(context.Background(), request("S")))

	assert.Equal(t, []hrchat.Phase{
		hrchat.PhasePending,
		hrchat.PhaseStreaming,
		hrchat.PhaseStreaming,
		hrchat.PhaseStreaming,
		hrchat.PhaseGeneratingTitle,
		hrchat.PhaseIdle,
	}, phases)

	msgs := f.messages.Messages("S")
	require.Len(t, msgs, 2)
	assert.Equal(t, "u1", msgs[0].ID)
	assert.Equal(t, hrchat.RoleUser, msgs[0].Role)
	assert.Equal(t, "a1", msgs[1].ID)
	assert.Equal(t, "Hello world!", msgs[1].Message)
	require.NotNil(t, msgs[1].ParentMessageID)
	assert.Equal(t, "u1", *msgs[1].ParentMessageID)

	s, err := f.sessions.Session("S")
	require.NoError(t, err)
	assert.Equal(t, "Greeting", s.Title)

	f.requireIdle(t, "S")
}

func TestLoop_Send_SequentialCycles(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	turn := 0
	tr := &mock.Transport{
		SendMessageFn: func(_ context.Context, _ hrchat.SendMessageRequest) (io.ReadCloser, error) {
			turn++
			body := metadataFrame("S", fmt.Sprintf("u%d", turn)) +
				deltaFrame(fmt.Sprintf("answer %d", turn)) +
				completeFrame("S", fmt.Sprintf("a%d", turn), fmt.Sprintf("u%d", turn))
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
	loop := f.loop(tr)

	require.NoError(t, loop.Send(context.Background(), request("S")))
	require.NoError(t, loop.Send(context.Background(), request("S")))

	got := assistantMessages(f.messages.Messages("S"))
	require.Len(t, got, 2)
	assert.Equal(t, "answer 1", got[0].Message)
	assert.Equal(t, "answer 2", got[1].Message)
	f.requireIdle(t, "S")
}

func TestLoop_Send_CancelFlushesPartialText(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	tr, pw := pipeTransport()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	loop := f.loop(tr, chat.WithClock(func() time.Time { return now }, func() string { return "local-1" }))

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Send(context.Background(), request("S")) }()

	_, err := io.WriteString(pw, metadataFrame("S", "u1")+deltaFrame("Hel")+deltaFrame("lo"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		text, err := f.store.Text("S")
		return err == nil && text == "Hello"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, loop.Cancel("S"))
	require.NoError(t, <-errCh)

	got := assistantMessages(f.messages.Messages("S"))
	require.Len(t, got, 1)
	parent := "u1"
	assert.Equal(t, hrchat.ChatMessage{
		ID:              "local-1",
		ChatSessionID:   "S",
		Role:            hrchat.RoleAssistant,
		Message:         "Hello",
		ParentMessageID: &parent,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, got[0])
	f.requireIdle(t, "S")
}

func TestLoop_Send_CancelBeforeText(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	tr, pw := pipeTransport()
	loop := f.loop(tr)

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Send(context.Background(), request("S")) }()

	_, err := io.WriteString(pw, metadataFrame("S", "u1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(f.messages.Messages("S")) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, loop.Cancel("S"))
	require.NoError(t, <-errCh)

	assert.Empty(t, assistantMessages(f.messages.Messages("S")))
	f.requireIdle(t, "S")
}

func TestLoop_Send_ParentContextCancelled(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	tr, pw := pipeTransport()
	loop := f.loop(tr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Send(ctx, request("S")) }()

	_, err := io.WriteString(pw, deltaFrame("partial"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		text, err := f.store.Text("S")
		return err == nil && text == "partial"
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	got := assistantMessages(f.messages.Messages("S"))
	require.Len(t, got, 1)
	assert.Equal(t, "partial", got[0].Message)
	assert.Nil(t, got[0].ParentMessageID)
	f.requireIdle(t, "S")
}

func TestLoop_Send_IdleTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	tr, pw := pipeTransport()
	loop := f.loop(tr, chat.WithIdleTimeout(200*time.Millisecond))

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Send(context.Background(), request("S")) }()

	_, err := io.WriteString(pw, metadataFrame("S", "u1")+deltaFrame("half an ans"))
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, hrchat.ErrIdleTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not time out")
	}

	got := assistantMessages(f.messages.Messages("S"))
	require.Len(t, got, 1)
	assert.Equal(t, "half an ans", got[0].Message)
	f.requireIdle(t, "S")
}

func TestLoop_Send_ServerError(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	body := metadataFrame("S", "u1") + deltaFrame("Hel") + frame("error", `{"c": "model overloaded"}`)
	loop := f.loop(staticTransport(body))

	err := loop.Send(context.Background(), request("S"))
	var serr *hrchat.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "model overloaded", serr.Message)

	// Only cancellation preserves partial text.
	assert.Empty(t, assistantMessages(f.messages.Messages("S")))
	f.requireIdle(t, "S")
}

func TestLoop_Send_DecodeError(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	body := deltaFrame("ok") + "event: delta\ndata: {not json\n\n"
	loop := f.loop(staticTransport(body))

	err := loop.Send(context.Background(), request("S"))
	assert.ErrorIs(t, err, sse.ErrDecode)
	f.requireIdle(t, "S")
}

func TestLoop_Send_TransportError(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	wantErr := errors.New("connection refused")
	loop := f.loop(&mock.Transport{
		SendMessageFn: func(_ context.Context, _ hrchat.SendMessageRequest) (io.ReadCloser, error) {
			return nil, wantErr
		},
	})

	err := loop.Send(context.Background(), request("S"))
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, f.messages.Messages("S"))
	f.requireIdle(t, "S")
}

func TestLoop_Send_ReadError(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	wantErr := errors.New("connection reset")
	loop := f.loop(&mock.Transport{
		SendMessageFn: func(_ context.Context, _ hrchat.SendMessageRequest) (io.ReadCloser, error) {
			pr, pw := io.Pipe()
			go func() {
				_, _ = io.WriteString(pw, deltaFrame("Hel"))
				pw.CloseWithError(wantErr)
			}()
			return pr, nil
		},
	})

	err := loop.Send(context.Background(), request("S"))
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, assistantMessages(f.messages.Messages("S")))
	f.requireIdle(t, "S")
}

func TestLoop_Send_UnexpectedEOF(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	loop := f.loop(staticTransport(metadataFrame("S", "u1") + deltaFrame("trunc")))

	err := loop.Send(context.Background(), request("S"))
	assert.ErrorIs(t, err, hrchat.ErrUnexpectedEOF)
	assert.Empty(t, assistantMessages(f.messages.Messages("S")))
	f.requireIdle(t, "S")
}

func TestLoop_Send_MessageListFailure(t *testing.T) {
	t.Parallel()
	store := inmem.NewStreamStore()
	wantErr := errors.New("storage unavailable")
	loop := chat.New(
		staticTransport(metadataFrame("S", "u1")+deltaFrame("x")+completeFrame("S", "a1", "u1")),
		store,
		&mock.MessageList{AppendMessageFn: func(context.Context, hrchat.ChatMessage) error { return wantErr }},
		&mock.SessionList{},
	)

	err := loop.Send(context.Background(), request("S"))
	assert.ErrorIs(t, err, wantErr)
	st, err := store.State("S")
	require.NoError(t, err)
	assert.Equal(t, hrchat.SessionState{Phase: hrchat.PhaseIdle}, st)
}

func TestLoop_Send_FillsOmittedFields(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	body := frame("metadata", `{"c": {"id": "u1"}}`) + deltaFrame("x") + frame("stream_complete", `{"c": {"id": "a1"}}`)
	loop := f.loop(staticTransport(body))

	require.NoError(t, loop.Send(context.Background(), request("S")))
	msgs := f.messages.Messages("S")
	require.Len(t, msgs, 2)
	assert.Equal(t, hrchat.RoleUser, msgs[0].Role)
	assert.Equal(t, "S", msgs[0].ChatSessionID)
	assert.Equal(t, hrchat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "S", msgs[1].ChatSessionID)
}

func TestLoop_Send_InvalidRequest(t *testing.T) {
	t.Parallel()
	f := newFixture()
	loop := f.loop(&mock.Transport{})
	err := loop.Send(context.Background(), hrchat.SendMessageRequest{ChatSessionID: "S"})
	assert.ErrorIs(t, err, hrchat.ErrValidation)
}

func TestLoop_Send_RejectsConcurrentCycleOnSameSession(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	tr, _ := pipeTransport()
	loop := f.loop(tr)

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Send(context.Background(), request("S")) }()
	require.Eventually(t, func() bool {
		st, err := f.store.State("S")
		return err == nil && st.Cancelable
	}, time.Second, 5*time.Millisecond)

	err := loop.Send(context.Background(), request("S"))
	assert.ErrorIs(t, err, hrchat.ErrStreamInProgress)

	// The rejected call must not tear down the active cycle.
	st, err := f.store.State("S")
	require.NoError(t, err)
	assert.True(t, st.Cancelable)

	require.NoError(t, loop.Cancel("S"))
	require.NoError(t, <-errCh)
	f.requireIdle(t, "S")
}

func TestLoop_Cancel_Misuse(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	loop := f.loop(&mock.Transport{})
	assert.ErrorIs(t, loop.Cancel("never-seen"), hrchat.ErrSessionNotFound)
}

func TestLoop_Send_IndependentSessions(t *testing.T) {
	t.Parallel()
	f := newFixture("A", "B")

	var mu sync.Mutex
	writers := map[string]*io.PipeWriter{}
	ready := make(chan string, 2)
	tr := &mock.Transport{
		SendMessageFn: func(ctx context.Context, req hrchat.SendMessageRequest) (io.ReadCloser, error) {
			pr, pw := io.Pipe()
			mu.Lock()
			writers[req.ChatSessionID] = pw
			mu.Unlock()
			ready <- req.ChatSessionID
			return pr, nil
		},
	}
	loop := f.loop(tr)

	errs := make(chan error, 2)
	for _, id := range []string{"A", "B"} {
		go func() { errs <- loop.Send(context.Background(), request(id)) }()
	}
	<-ready
	<-ready

	writer := func(id string) *io.PipeWriter {
		mu.Lock()
		defer mu.Unlock()
		return writers[id]
	}
	write := func(id, s string) {
		_, err := io.WriteString(writer(id), s)
		require.NoError(t, err)
	}

	write("A", metadataFrame("A", "ua"))
	write("B", metadataFrame("B", "ub"))
	write("B", deltaFrame("b1 "))
	write("A", deltaFrame("a1 "))
	write("A", deltaFrame("a2"))
	write("B", deltaFrame("b2"))
	write("B", completeFrame("B", "ab", "ub"))
	require.NoError(t, writer("B").Close())
	write("A", completeFrame("A", "aa", "ua"))
	require.NoError(t, writer("A").Close())

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	a := assistantMessages(f.messages.Messages("A"))
	b := assistantMessages(f.messages.Messages("B"))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, "a1 a2", a[0].Message)
	assert.Equal(t, "b1 b2", b[0].Message)
	f.requireIdle(t, "A")
	f.requireIdle(t, "B")
}

func TestLoop_Stream_PerCallHandler(t *testing.T) {
	t.Parallel()
	f := newFixture("S")
	body := metadataFrame("S", "u1") + deltaFrame("Hi") + completeFrame("S", "a1", "u1")

	var global, local []hrchat.Event
	loop := f.loop(staticTransport(body), chat.WithEventHandler(func(_ string, evt hrchat.Event) {
		global = append(global, evt)
	}))
	require.NoError(t, loop.Stream(context.Background(), request("S"), func(evt hrchat.Event) {
		require.Len(t, global, len(local)+1, "loop-wide handler runs first")
		local = append(local, evt)
	}))

	assert.Equal(t, global, local)
	require.Len(t, local, 3)
	assert.Equal(t, hrchat.EventDelta{Text: "Hi"}, local[1])
}
