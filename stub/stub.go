// Package stub implements an in-process chat backend that speaks the same
// wire format as the real service. It is used for local development and
// end-to-end tests.
package stub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/hrchat"
	"github.com/fwojciec/hrchat/sse"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server is the stub backend.
type Server struct {
	router http.Handler
	reply  func(prompt string) []string
	title  func(prompt string) string
	delay  time.Duration
	loose  bool
	token  string
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	agentID  string
	messages int
}

// Option configures a [Server].
type Option func(*Server)

// WithReply sets the function that produces the assistant's delta
// fragments for a prompt.
func WithReply(fn func(prompt string) []string) Option {
	return func(s *Server) { s.reply = fn }
}

// WithTitle sets the function that names a session after its first prompt.
func WithTitle(fn func(prompt string) string) Option {
	return func(s *Server) { s.title = fn }
}

// WithDelay pauses for d before every frame.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithLooseDialect makes the server emit Python-style payloads: single
// quoted strings and True, False and None literals.
func WithLooseDialect() Option {
	return func(s *Server) { s.loose = true }
}

// WithToken requires every chat request to carry the bearer token.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// New creates a stub backend.
func New(opts ...Option) *Server {
	s := &Server{
		reply:    EchoReply,
		title:    FirstWordsTitle,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/chat", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/create-chat-session", s.handleCreateSession)
		r.Post("/send-message", s.handleSendMessage)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// EchoReply answers with the prompt, one word per fragment.
func EchoReply(prompt string) []string {
	words := strings.Fields(prompt)
	out := make([]string, 0, len(words)+1)
	out = append(out, "You said:")
	for _, w := range words {
		out = append(out, " "+w)
	}
	return out
}

// FirstWordsTitle uses up to the first five words of the prompt.
func FirstWordsTitle(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 5 {
		words = words[:5]
	}
	if len(words) == 0 {
		return "New chat"
	}
	return strings.Join(words, " ")
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeDetail(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createSessionRequest struct {
	AgentID     string `json:"agent_id"`
	Description string `json:"description"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{agentID: req.AgentID}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"chat_session_id": id})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req hrchat.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeDetail(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[req.ChatSessionID]
	first := ok && sess.messages == 0
	if ok {
		sess.messages++
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "chat session not found")
		return
	}

	now := s.now().UTC()
	user := hrchat.ChatMessage{
		ID:              uuid.NewString(),
		ChatSessionID:   req.ChatSessionID,
		Role:            hrchat.RoleUser,
		Message:         req.Message,
		ParentMessageID: req.ParentMessageID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	fragments := s.reply(req.Message)
	assistant := hrchat.ChatMessage{
		ID:              uuid.NewString(),
		ChatSessionID:   req.ChatSessionID,
		Role:            hrchat.RoleAssistant,
		Message:         strings.Join(fragments, ""),
		ParentMessageID: &user.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	sw := &streamWriter{w: w, loose: s.loose, delay: s.delay, done: r.Context().Done()}
	sw.flusher, _ = w.(http.Flusher)

	if !sw.frame(sse.EventMetadata, user) {
		return
	}
	for _, f := range fragments {
		if !sw.frame(sse.EventDelta, f) {
			return
		}
	}
	if first {
		if !sw.frame(sse.EventTitleGeneration, s.title(req.Message)) {
			return
		}
	}
	sw.frame(sse.EventStreamComplete, assistant)
}

// streamWriter writes SSE frames until the client goes away.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	loose   bool
	delay   time.Duration
	done    <-chan struct{}
}

func (sw *streamWriter) frame(event string, content any) bool {
	if sw.delay > 0 {
		t := time.NewTimer(sw.delay)
		select {
		case <-t.C:
		case <-sw.done:
			t.Stop()
			return false
		}
	}
	data, err := json.Marshal(struct {
		C any `json:"c"`
	}{C: content})
	if err != nil {
		return false
	}
	line := string(data)
	if sw.loose {
		line = Loosen(data)
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, line); err != nil {
		return false
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return true
}

// Loosen rewrites a JSON document in the Python-style dialect. Strings
// switch to single quotes and the true, false and null literals are
// capitalized. Strings containing single quotes do not survive the trip.
func Loosen(js []byte) string {
	var sb strings.Builder
	inString := false
	for i := 0; i < len(js); i++ {
		c := js[i]
		if inString {
			switch c {
			case '\\':
				if i+1 < len(js) && js[i+1] == '"' {
					sb.WriteByte('"')
				} else {
					sb.WriteByte(c)
					if i+1 < len(js) {
						sb.WriteByte(js[i+1])
					}
				}
				i++
			case '"':
				inString = false
				sb.WriteByte('\'')
			default:
				sb.WriteByte(c)
			}
			continue
		}
		rest := js[i:]
		switch {
		case c == '"':
			inString = true
			sb.WriteByte('\'')
		case bytes.HasPrefix(rest, []byte("true")):
			sb.WriteString("True")
			i += 3
		case bytes.HasPrefix(rest, []byte("false")):
			sb.WriteString("False")
			i += 4
		case bytes.HasPrefix(rest, []byte("null")):
			sb.WriteString("None")
			i += 3
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
