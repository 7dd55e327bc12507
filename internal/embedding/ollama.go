package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// OllamaProvider calls the Ollama embeddings endpoint.
type OllamaProvider struct {
	endpoint   string
	httpClient *http.Client
}

var (
	_ Provider      = (*OllamaProvider)(nil)
	_ StatusChecker = (*OllamaProvider)(nil)
)

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaProvider creates a provider posting to endpoint, e.g.
// http://127.0.0.1:11434/api/embeddings. timeout bounds each request.
func NewOllamaProvider(endpoint string, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed implements Provider.
func (p *OllamaProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrService, err)
	}

	vec := make([]float32, len(out.Embedding))
	for i, x := range out.Embedding {
		vec[i] = float32(x)
	}
	return vec, nil
}

// Status implements StatusChecker using GET /api/version on the endpoint's host.
func (p *OllamaProvider) Status(ctx context.Context) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", p.endpoint, err)
	}
	u.Path = "/api/version"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
	}

	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("%w: decode version: %w", ErrService, err)
	}
	return v.Version, nil
}
