// Package embedding turns text into vectors through a remote embedding
// service, with input validation, retry and output validation.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chunker"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/metrics"
)

// Provider performs one embedding request. Failures should wrap
// ErrService; anything else is treated as a service error too.
type Provider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// StatusChecker is implemented by providers that can report their version.
type StatusChecker interface {
	Status(ctx context.Context) (string, error)
}

// Embedder is the surface the pipelines depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NotifyFunc observes each retry: the attempt that failed, its error and
// the delay before the next attempt.
type NotifyFunc func(attempt int, err error, delay time.Duration)

// Client wraps a Provider with validation and retry.
type Client struct {
	provider      Provider
	model         string
	maxAttempts   int
	baseDelay     time.Duration
	maxInputChars int
	minDimension  int

	logger  zerolog.Logger
	notify  NotifyFunc
	timer   backoff.Timer
	metrics *metrics.Metrics
}

var _ Embedder = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithModel sets the model name sent to the provider
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithMaxAttempts sets the total number of attempts per call
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the backoff base
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithMaxInputChars sets the input ceiling in characters
func WithMaxInputChars(n int) Option {
	return func(c *Client) { c.maxInputChars = n }
}

// WithMinDimension sets the smallest accepted vector dimension
func WithMinDimension(n int) Option {
	return func(c *Client) { c.minDimension = n }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithNotify registers a retry observer
func WithNotify(fn NotifyFunc) Option {
	return func(c *Client) { c.notify = fn }
}

// WithTimer replaces the timer used to wait between attempts
func WithTimer(t backoff.Timer) Option {
	return func(c *Client) { c.timer = t }
}

// WithMetrics records call outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client with the default limits.
func NewClient(p Provider, opts ...Option) *Client {
	d := config.Default().Embedding
	c := &Client{
		provider:      p,
		model:         d.Model,
		maxAttempts:   d.MaxAttempts,
		baseDelay:     d.BaseDelay,
		maxInputChars: d.MaxInputChars,
		minDimension:  d.MinDimension,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the provider named in cfg and wraps it in a Client.
func NewFromConfig(cfg config.EmbeddingConfig, opts ...Option) (*Client, error) {
	var p Provider
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		p = NewOllamaProvider(cfg.Endpoint, cfg.Timeout)
	case "openai":
		p = NewOpenAIProvider(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	base := []Option{
		WithModel(cfg.Model),
		WithMaxAttempts(cfg.MaxAttempts),
		WithBaseDelay(cfg.BaseDelay),
		WithMaxInputChars(cfg.MaxInputChars),
		WithMinDimension(cfg.MinDimension),
	}
	return NewClient(p, append(base, opts...)...), nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Embed returns the embedding of text. Service errors are retried with
// exponential backoff; the error of the last attempt is returned once
// attempts run out.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &Error{Op: "embed", Err: ErrEmptyInput}
	}
	if n := utf8.RuneCountInString(text); c.maxInputChars > 0 && n > c.maxInputChars {
		return nil, &Error{Op: "embed", Err: fmt.Errorf("%w: %d characters exceeds %d", ErrInputTooLarge, n, c.maxInputChars)}
	}

	start := time.Now()
	attempts := 0
	var vec []float32

	op := func() error {
		attempts++
		v, err := c.provider.Embed(ctx, c.model, text)
		if err != nil {
			if !errors.Is(err, ErrService) {
				err = fmt.Errorf("%w: %w", ErrService, err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := c.validate(v); err != nil {
			return backoff.Permanent(err)
		}
		vec = v
		return nil
	}

	notify := func(err error, delay time.Duration) {
		c.metrics.EmbedRetry()
		c.logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_attempts", c.maxAttempts).
			Dur("backoff", delay).
			Msg("Embedding attempt failed, retrying")
		if c.notify != nil {
			c.notify(attempts, err, delay)
		}
	}

	if err := backoff.RetryNotifyWithTimer(op, c.policy(ctx), notify, c.timer); err != nil {
		c.metrics.EmbedDone(outcome(err), time.Since(start))
		return nil, &Error{Op: "embed", Attempts: attempts, Err: err}
	}

	c.metrics.EmbedDone("ok", time.Since(start))
	return vec, nil
}

// EmbedChunked embeds text directly when it fits in limit characters and
// otherwise embeds each fixed-size piece, returning vectors in order.
func (c *Client) EmbedChunked(ctx context.Context, text string, limit int) ([][]float32, error) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		v, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	}

	pieces := chunker.NewChunker().
		WithStrategy(chunker.Fixed).
		WithChunkSize(limit).
		WithMaxChunkSize(limit).
		Chunk(text)

	out := make([][]float32, 0, len(pieces))
	for i, p := range pieces {
		v, err := c.Embed(ctx, p.Text)
		if err != nil {
			return nil, fmt.Errorf("chunk %d [%d:%d]: %w", i, p.Start, p.End, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// CheckStatus asks the provider for its version.
func (c *Client) CheckStatus(ctx context.Context) (string, error) {
	sc, ok := c.provider.(StatusChecker)
	if !ok {
		return "", ErrStatusUnsupported
	}
	return sc.Status(ctx)
}

// policy allows maxAttempts-1 retries.
func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	if c.maxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(backoff.WithMaxRetries(newDoubling(c.baseDelay), uint64(c.maxAttempts-1)), ctx)
}

func (c *Client) validate(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidOutput)
	}
	if len(v) < c.minDimension {
		return fmt.Errorf("%w: dimension %d below minimum %d", ErrInvalidOutput, len(v), c.minDimension)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidOutput, i)
		}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOutput):
		return "invalid_output"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "service_error"
	}
}
