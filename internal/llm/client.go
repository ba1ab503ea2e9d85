// Package llm implements schema-constrained field extraction through an
// external chat-completion service, with bounded retries and strict output
// validation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
)

const (
	// RoleSystem and RoleUser are the chat message roles this client emits.
	RoleSystem = "system"
	RoleUser   = "user"

	defaultRequestTimeout = 60 * time.Second
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient sends a chat-completion request and returns the raw model text.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ClientConfig configures the HTTP chat client.
type ClientConfig struct {
	// Endpoint is the full chat-completions URL.
	Endpoint string
	// Model names the model to request.
	Model string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Temperature for sampling; extraction uses a low value.
	Temperature float64
	// Retry bounds transient-failure retries.
	Retry RetryPolicy
}

// HTTPChatClient talks to an OpenAI-compatible chat-completions endpoint.
// Transient failures (network errors, HTTP 5xx, 429) are retried with
// exponential backoff per the configured policy; other client errors are
// permanent request defects and propagate immediately.
type HTTPChatClient struct {
	cfg    ClientConfig
	client *http.Client
	sleep  Sleeper
	logger *slog.Logger
}

// NewHTTPChatClient creates a chat client. A nil httpClient gets a default
// with a request timeout; a nil sleeper sleeps for real.
func NewHTTPChatClient(cfg ClientConfig, httpClient *http.Client, sleep Sleeper, logger *slog.Logger) *HTTPChatClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPChatClient{cfg: cfg, client: httpClient, sleep: sleep, logger: logger}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends the messages and returns the first choice's content.
func (c *HTTPChatClient) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	return retry(ctx, c.cfg.Retry, c.sleep, func() (string, error) {
		return c.doRequest(ctx, body)
	})
}

func (c *HTTPChatClient) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", perrors.Wrap(perrors.KindMalformedInput, "failed to build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", perrors.Wrap(perrors.KindTransport, "chat request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", perrors.Wrap(perrors.KindTransport, "failed to read chat response", err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		c.logger.Warn("chat request rejected", "status", resp.StatusCode)
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", perrors.Wrap(perrors.KindSchemaViolation, "chat response is not valid JSON", err)
	}
	if len(parsed.Choices) == 0 {
		return "", perrors.New(perrors.KindSchemaViolation, "chat response contains no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// classifyStatus maps an HTTP status to a pipeline error kind. 5xx and 429
// are transient; 401/403 are credential failures; any other 4xx is a
// permanent request defect.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return perrors.New(perrors.KindTransport, fmt.Sprintf("chat service returned status %d", status))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return perrors.New(perrors.KindAuth, fmt.Sprintf("chat service rejected credentials with status %d", status))
	default:
		return perrors.New(perrors.KindMalformedInput, fmt.Sprintf("chat service rejected request with status %d", status))
	}
}
