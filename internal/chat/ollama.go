package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient calls the Ollama /api/chat endpoint without streaming.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

var _ Completer = (*OllamaClient)(nil)

type ollamaRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// NewOllamaClient creates a client for endpoint, e.g.
// http://127.0.0.1:11434/api/chat.
func NewOllamaClient(endpoint, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete implements Completer.
func (c *OllamaClient) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(ollamaRequest{Model: c.model, Messages: messages, Stream: false})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %w", ErrService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrService, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrService, out.Error)
	}
	return reply(out.Message.Content)
}
