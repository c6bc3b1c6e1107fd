package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
)

const (
	// DefaultTimeout bounds a single blocking chat call
	DefaultTimeout = 30 * time.Second

	// ResponseModeBlocking asks Dify to return the whole answer in one body
	ResponseModeBlocking = "blocking"

	maxErrorBody = 4 << 10
)

// ChatRequest is the body of POST /chat-messages
type ChatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID *string        `json:"conversation_id"`
	User           string         `json:"user"`
}

// ChatResponse is the blocking-mode answer returned by Dify
type ChatResponse struct {
	Event          string         `json:"event"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	Answer         string         `json:"answer"`
	CreatedAt      int64          `json:"created_at"`
	Metadata       map[string]any `json:"metadata"`
}

// Client is a client for the Dify chat API
type Client struct {
	httpClient *http.Client
	baseURL    config.Optional
	apiKey     config.Optional
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a new Dify client. httpClient is shared with the rest of
// the process and is not closed by the Client.
func NewClient(httpClient *http.Client, baseURL, apiKey config.Optional, timeout time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
		logger:     logger,
	}
}

// Configured reports whether both the base URL and API key are set
func (c *Client) Configured() bool {
	return c.baseURL.IsSet() && c.apiKey.IsSet()
}

// Query sends one user turn to Dify. conversationID may be empty for the
// first turn. Every failure is returned as an apperr.BackendUnavailable error;
// no retry is attempted.
func (c *Client) Query(ctx context.Context, text, user, conversationID string) (*models.AIReply, error) {
	if !c.Configured() {
		return nil, apperr.New(apperr.BackendUnavailable, "dify credentials not configured", nil)
	}

	req := ChatRequest{
		Inputs:       map[string]any{},
		Query:        text,
		ResponseMode: ResponseModeBlocking,
		User:         user,
	}
	if conversationID != "" {
		req.ConversationID = &conversationID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, "marshal request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Value())
	httpReq.Header.Set("Content-Type", "application/json")

	logger := logging.FromContext(ctx, c.logger)
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Error("dify returned non-success status",
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(snippet)),
		)
		return nil, apperr.New(apperr.BackendUnavailable, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var chat ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, "decode response", err)
	}

	logger.Debug("dify replied",
		"user", user,
		"conversation_id", chat.ConversationID,
		"elapsed", time.Since(start),
	)

	return &models.AIReply{
		Answer:         chat.Answer,
		ConversationID: chat.ConversationID,
		MessageID:      chat.MessageID,
		RawMetadata:    chat.Metadata,
	}, nil
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.baseURL.Value(), "/") + "/chat-messages"
}
