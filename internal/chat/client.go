// Package chat is the client for the remote interview chat service.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/prepy-voice/internal/domain"
)

// ErrRemote marks a reply in which the chat service reported failure.
var ErrRemote = errors.New("chat service error")

// maxErrorBody bounds how much of a failed response is kept for logs.
const maxErrorBody = 512

// Request is the body of a chat call.
type Request struct {
	Message       string           `json:"message"`
	History       []domain.Message `json:"history"`
	SystemPrompt  string           `json:"system_prompt"`
	ExtractedText string           `json:"extracted_text"`
	IsFinalTurn   bool             `json:"is_final_turn"`
}

// Response is the body of a chat reply.
type Response struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	History []domain.Message `json:"history,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// RemoteError carries the service's own failure description.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat service returned status %d: %s", e.Status, e.Message)
	}
	return "chat service: " + e.Message
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// Client talks to the chat endpoint over HTTP/JSON.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Chat sends one user message with the full history. It returns an error for
// transport failures, non-2xx statuses, undecodable bodies, replies with
// success=false, and successful replies that carry no history.
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	c.logger.Debug("Chat response received", "status", resp.StatusCode, "latency", time.Since(start))

	var out Response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = truncate(strings.TrimSpace(string(raw)), maxErrorBody)
		}
		return nil, &RemoteError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode chat response: %w", decodeErr)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "API Error"
		}
		return nil, &RemoteError{Message: msg}
	}
	if len(out.History) == 0 {
		return nil, &RemoteError{Message: "reply carried no history"}
	}
	if err := domain.ValidateHistory(out.History); err != nil {
		return nil, fmt.Errorf("validate chat history: %w", err)
	}
	return &out, nil
}

// Health probes the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe chat service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &RemoteError{Status: resp.StatusCode, Message: "unhealthy"}
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
