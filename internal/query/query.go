// Package query answers questions from an ingested snapshot: it embeds the
// question, retrieves the nearest chunks, reads their source files back and
// asks the chat service with that context.
package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chat"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chunker"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/embedding"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/metrics"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/snapshot"
)

// ContextSeparator joins the pieces of the context and the question.
const ContextSeparator = "\n\n"

var (
	// ErrIndexLoad is returned when the snapshot cannot be read.
	ErrIndexLoad = errors.New("failed to load index")
	// ErrEmbedding is returned when the question cannot be embedded.
	ErrEmbedding = errors.New("failed to embed query")
	// ErrNoResults is returned when the index has nothing to offer.
	ErrNoResults = errors.New("no results found")
	// ErrConsistency is returned when a search hit has no metadata entry.
	// It means the index and metadata were not written together.
	ErrConsistency = errors.New("index and metadata are inconsistent")
	// ErrChat wraps chat service failures.
	ErrChat = errors.New("chat request failed")
	// ErrEmptyResponse is returned when the chat service answers with no text.
	ErrEmptyResponse = chat.ErrEmptyResponse
)

// Hit is one retrieved entry.
type Hit struct {
	DocID    int     `json:"doc_id"`
	Distance float32 `json:"distance"`
	Source   string  `json:"source"`
}

// Retrieval is the outcome of the retrieval half of a query.
type Retrieval struct {
	Hits []Hit `json:"hits"`
	// Context holds the truncated content of every readable source, nearest first.
	Context string `json:"context"`
	// Sources lists the files that contributed to Context, duplicates kept.
	Sources []string `json:"sources"`
}

// Result is the answer to a question.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Count   int      `json:"count"`
}

// UniqueSources returns Sources without repeats, in first-seen order.
func (r *Result) UniqueSources() []string {
	return unique(r.Sources)
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Engine runs queries against the snapshot named by its configuration.
type Engine struct {
	cfg      config.QueryConfig
	embedder embedding.Embedder
	chat     chat.Completer

	snap    *snapshot.Snapshot
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records query outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSnapshot pins an already loaded snapshot instead of reading it from
// disk on every query.
func WithSnapshot(s *snapshot.Snapshot) Option {
	return func(e *Engine) { e.snap = s }
}

// NewEngine creates an Engine.
func NewEngine(cfg config.QueryConfig, embedder embedding.Embedder, completer chat.Completer, opts ...Option) *Engine {
	if cfg.Basename == "" {
		cfg.Basename = config.Default().Index.Basename
	}
	e := &Engine{
		cfg:      cfg,
		embedder: embedder,
		chat:     completer,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() config.QueryConfig { return e.cfg }

// Load reads the snapshot from the configured data directory.
func (e *Engine) Load() (*snapshot.Snapshot, error) {
	if e.snap != nil {
		return e.snap, nil
	}
	s, err := snapshot.Load(e.cfg.DataDir, e.cfg.Basename, e.cfg.SearchEf)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrIndexLoad, e.cfg.DataDir, err)
	}
	return s, nil
}

// Retrieve loads the snapshot, embeds question, searches for the nearest
// entries and reads their sources into a bounded context.
func (e *Engine) Retrieve(ctx context.Context, question string) (*Retrieval, error) {
	snap, err := e.Load()
	if err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	results, err := snap.Index.Search(vec, e.cfg.NumResults, e.cfg.SearchEf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	r := &Retrieval{Hits: make([]Hit, 0, len(results))}
	var pieces []string
	for _, res := range results {
		src, ok := snap.Source(res.ID)
		if !ok {
			return nil, fmt.Errorf("%w: doc_id %d with %d metadata entries", ErrConsistency, res.ID, len(snap.Metadata))
		}
		r.Hits = append(r.Hits, Hit{DocID: res.ID, Distance: res.Distance, Source: src})

		content, err := os.ReadFile(src)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", src).Int("doc_id", res.ID).Msg("Skipping unreadable source")
			continue
		}
		pieces = append(pieces, chunker.Truncate(string(content), e.cfg.MaxContextChars))
		r.Sources = append(r.Sources, src)
	}
	r.Context = strings.Join(pieces, ContextSeparator)
	return r, nil
}

// Prompt is the text sent to the chat service.
func Prompt(contextText, question string) string {
	return contextText + ContextSeparator + question
}

// Answer runs a full query.
func (e *Engine) Answer(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	res, err := e.answer(ctx, question)
	e.metrics.QueryDone(outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) answer(ctx context.Context, question string) (*Result, error) {
	r, err := e.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Int("hits", len(r.Hits)).Int("sources", len(r.Sources)).Int("context_chars", len(r.Context)).Msg("Retrieved context")

	answer, err := chat.Ask(ctx, e.chat, Prompt(r.Context, question))
	if err != nil {
		if errors.Is(err, chat.ErrEmptyResponse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrChat, err)
	}

	return &Result{
		Answer:  answer,
		Sources: r.Sources,
		Count:   len(r.Sources),
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoResults):
		return "no_results"
	default:
		return "error"
	}
}
