// Package api implements [hrchat.Transport] for the chat backend's HTTP API.
//
// Messages are sent with a JSON POST whose response is a server-sent event
// stream; the body is handed to the caller unread so the chat loop can
// decode it incrementally.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/hrchat"
)

const (
	sendMessagePath   = "/chat/send-message"
	createSessionPath = "/chat/create-chat-session"
)

// Interface compliance check.
var _ hrchat.Transport = (*Client)(nil)

// Error is a non-200 response from the backend.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Detail)
}

// errorResponse is the JSON body returned on non-200 responses.
type errorResponse struct {
	Detail string `json:"detail"`
}

type createSessionRequest struct {
	AgentID     string `json:"agent_id"`
	Description string `json:"description,omitempty"`
}

type createSessionResponse struct {
	ChatSessionID string `json:"chat_session_id"`
}

// Client talks to the chat backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a [Client] for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendMessage posts req and returns the event stream body. The caller must
// close it. Cancelling ctx aborts pending reads.
func (c *Client) SendMessage(ctx context.Context, req hrchat.SendMessageRequest) (io.ReadCloser, error) {
	resp, err := c.post(ctx, sendMessagePath, req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CreateChatSession creates a session on the backend for the given agent
// and returns its ID.
func (c *Client) CreateChatSession(ctx context.Context, agentID, description string) (string, error) {
	resp, err := c.post(ctx, createSessionPath, createSessionRequest{AgentID: agentID, Description: description}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("api: decode session: %w", err)
	}
	if out.ChatSessionID == "" {
		return "", fmt.Errorf("api: empty chat_session_id in response")
	}
	return out.ChatSessionID, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return resp, nil
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("failed to read body: %v", err)}
	}
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Detail == "" {
		return &Error{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}
	return &Error{StatusCode: resp.StatusCode, Detail: apiErr.Detail}
}
