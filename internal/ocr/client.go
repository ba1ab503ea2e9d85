// Package ocr obtains recognized text for a document, either from an
// external recognition service or from a PDF's native text layer.
package ocr

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

	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
)

const (
	// DefaultLanguage is the recognition language requested when none is
	// configured.
	DefaultLanguage = "deu"

	defaultRequestTimeout = 120 * time.Second
)

// Recognizer produces recognized text for a document's bytes.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte) (string, error)
}

// ClientConfig configures the HTTP recognition client.
type ClientConfig struct {
	// Endpoint is the recognition service URL.
	Endpoint string
	// Language is the recognition language code.
	Language string
	// EngineOptions are passed through to the service unmodified.
	EngineOptions map[string]string
}

// HTTPClient calls an external recognition service. Multi-segment results
// are joined with a blank line so downstream pattern rules can rely on
// segment boundaries.
type HTTPClient struct {
	cfg    ClientConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a recognition client. A nil httpClient gets a
// default with a generous timeout, since recognition of scanned documents
// is slow.
func NewHTTPClient(cfg ClientConfig, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPClient{cfg: cfg, client: httpClient, logger: logger}
}

type recognizeRequest struct {
	Document      []byte            `json:"document"`
	Language      string            `json:"language"`
	EngineOptions map[string]string `json:"engine_options,omitempty"`
}

type recognizeResponse struct {
	ParsedText []string `json:"parsed_text"`
	Error      string   `json:"error,omitempty"`
}

// Recognize sends the document bytes and returns the joined recognized text.
func (c *HTTPClient) Recognize(ctx context.Context, data []byte) (string, error) {
	body, err := json.Marshal(recognizeRequest{
		Document:      data,
		Language:      c.cfg.Language,
		EngineOptions: c.cfg.EngineOptions,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode recognition request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", perrors.Wrap(perrors.KindMalformedInput, "failed to build recognition request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", perrors.Wrap(perrors.KindTransport, "recognition request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", perrors.Wrap(perrors.KindTransport, "failed to read recognition response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := perrors.KindMalformedInput
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = perrors.KindTransport
		}
		return "", perrors.New(kind, fmt.Sprintf("recognition service returned status %d", resp.StatusCode))
	}

	var parsed recognizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", perrors.Wrap(perrors.KindSchemaViolation, "recognition response is not valid JSON", err)
	}
	if parsed.Error != "" {
		return "", perrors.New(perrors.KindMalformedInput, fmt.Sprintf("recognition service reported: %s", parsed.Error))
	}

	c.logger.Debug("document recognized", "segments", len(parsed.ParsedText))
	return strings.Join(parsed.ParsedText, "\n\n"), nil
}
