package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chunker"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/embedding"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/hnsw"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/metrics"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/snapshot"
)

// Pipeline runs ingestions with a fixed configuration.
type Pipeline struct {
	cfg      config.IngestConfig
	embedder embedding.Embedder
	chunker  *chunker.Chunker

	logger   zerolog.Logger
	metrics  *metrics.Metrics
	progress ProgressFunc
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger for the pipeline
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records file and run outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithProgress registers a progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// New creates a Pipeline. It fails only on an unknown chunking strategy.
func New(cfg config.IngestConfig, embedder embedding.Embedder, opts ...Option) (*Pipeline, error) {
	strategy, err := chunker.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Basename == "" {
		cfg.Basename = config.Default().Index.Basename
	}

	p := &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		chunker: chunker.NewChunker().
			WithStrategy(strategy).
			WithChunkSize(cfg.ChunkSize).
			WithMaxChunkSize(cfg.MaxChunkSize),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run holds the state shared by the tasks of one Run call.
type run struct {
	total     int
	done      atomic.Int64
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	malformed atomic.Int64

	mu      sync.Mutex
	results []fileResult

	progressMu sync.Mutex
}

// Run ingests the configured root and writes the snapshot. Per-file
// failures are counted and logged; only an invalid root, cancellation
// and persistence failures abort the run.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{
		RunID:     uuid.NewString(),
		OutputDir: p.cfg.OutputDir,
	}
	logger := p.logger.With().Str("run_id", stats.RunID).Logger()

	stats, err := p.run(ctx, logger, stats)
	stats.Duration = time.Since(start)
	if err != nil {
		p.metrics.IngestRun("failed")
		logger.Error().Err(err).Msg("Ingestion failed")
		return stats, err
	}
	p.metrics.IngestRun("success")
	logger.Info().
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("entries", stats.Entries).
		Int("failed_chunks", stats.FailedChunks).
		Int("malformed_lines", stats.MalformedLines).
		Dur("duration", stats.Duration).
		Msg("Ingestion complete")
	return stats, nil
}

func (p *Pipeline) run(ctx context.Context, logger zerolog.Logger, stats *Stats) (*Stats, error) {
	logger.Info().Str("root", p.cfg.Root).Str("output", p.cfg.OutputDir).Msg("Scanning directory")

	files, err := newScanner(p.cfg.Root, p.cfg.OutputDir, p.cfg.SkipDirs, p.cfg.Extensions).scan()
	if err != nil {
		return stats, err
	}
	logger.Info().Int("files", len(files)).Int("concurrency", p.cfg.Concurrency).Msg("Found files to ingest")

	r := &run{total: len(files)}
	if err := p.embedAll(ctx, logger, r, files); err != nil {
		return stats, err
	}
	stats.Processed = int(r.processed.Load())
	stats.Skipped = int(r.skipped.Load())
	stats.FailedChunks = int(r.failed.Load())
	stats.MalformedLines = int(r.malformed.Load())

	idx, metadata, rejected, err := p.commit(logger, r.results)
	if err != nil {
		return stats, err
	}
	stats.FailedChunks += rejected
	stats.Entries = len(metadata)
	p.metrics.IngestCommitted(len(metadata))

	if err := snapshot.Save(p.cfg.OutputDir, p.cfg.Basename, idx, metadata); err != nil {
		return stats, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return stats, nil
}

// embedAll processes files concurrently, at most Concurrency at a time.
// Every started task is awaited before returning.
func (p *Pipeline) embedAll(ctx context.Context, logger zerolog.Logger, r *run, files []string) error {
	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var g errgroup.Group

	var scheduleErr error
	for seq, path := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			scheduleErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return p.ingestFile(ctx, logger, r, seq, path)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return scheduleErr
}

// ingestFile runs one file through parse, chunk and embed and records the
// outcome. It returns an error only when ctx is done.
func (p *Pipeline) ingestFile(ctx context.Context, logger zerolog.Logger, r *run, seq int, path string) error {
	out, err := p.embedFile(ctx, logger, path)
	r.malformed.Add(int64(out.malformed))
	r.failed.Add(int64(out.failed))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		r.skipped.Add(1)
		p.metrics.IngestFile("skipped")
		logger.Warn().Err(err).Str("path", path).Msg("Skipping file")
	} else {
		r.processed.Add(1)
		p.metrics.IngestFile("processed")
		r.mu.Lock()
		r.results = append(r.results, fileResult{seq: seq, path: path, vectors: out.vectors})
		r.mu.Unlock()
	}

	p.reportProgress(logger, r)
	return nil
}

// fileOutcome carries the counters of one file alongside its vectors, so
// chunks of skipped files are still counted.
type fileOutcome struct {
	vectors   [][]float32
	malformed int
	failed    int
}

func (p *Pipeline) embedFile(ctx context.Context, logger zerolog.Logger, path string) (fileOutcome, error) {
	var out fileOutcome

	raw, err := os.ReadFile(path)
	if err != nil {
		return out, &FileError{Path: path, Stage: StageRead, Err: err}
	}

	doc, err := parseFile(path, raw, p.cfg.Fields, p.cfg.MaxFileChars)
	if err != nil {
		return out, &FileError{Path: path, Stage: StageParse, Err: err}
	}
	out.malformed = doc.malformed
	if doc.malformed > 0 {
		logger.Warn().Str("path", path).Int("lines", doc.malformed).Msg("Skipped malformed lines")
	}

	var chunks []chunker.Chunk
	for _, f := range doc.fields {
		chunks = append(chunks, p.chunker.ChunkField(f.Label, f.Text)...)
	}
	if len(chunks) == 0 {
		return out, &FileError{Path: path, Stage: StageChunk, Err: ErrNoChunks}
	}

	out.vectors = make([][]float32, 0, len(chunks))
	var lastErr error
	for _, c := range chunks {
		vec, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			lastErr = err
			out.failed++
			p.chunkFailed(logger, path, c, err)
			continue
		}
		out.vectors = append(out.vectors, vec)
	}
	if len(out.vectors) == 0 {
		return out, &FileError{Path: path, Stage: StageEmbed, Err: fmt.Errorf("%w: %w", ErrNoEmbeddings, lastErr)}
	}

	logger.Debug().Str("path", path).Int("chunks", len(chunks)).Int("embedded", len(out.vectors)).Msg("Embedded file")
	return out, nil
}

func (p *Pipeline) chunkFailed(logger zerolog.Logger, path string, c chunker.Chunk, err error) {
	ev := logger.Warn().Err(err).
		Str("path", path).
		Str("field", c.Label).
		Int("start", c.Start).
		Int("end", c.End)
	var embedErr *embedding.Error
	if errors.As(err, &embedErr) {
		ev = ev.Int("attempts", embedErr.Attempts)
	}
	ev.Msg("Failed to embed chunk")
}

func (p *Pipeline) reportProgress(logger zerolog.Logger, r *run) {
	done := int(r.done.Add(1))
	interval := p.cfg.ProgressInterval
	if interval <= 0 || (done%interval != 0 && done != r.total) {
		return
	}

	pr := Progress{
		Done:      done,
		Total:     r.total,
		Processed: int(r.processed.Load()),
		Skipped:   int(r.skipped.Load()),
	}
	logger.Info().
		Int("done", pr.Done).
		Int("total", pr.Total).
		Int("processed", pr.Processed).
		Int("skipped", pr.Skipped).
		Msg("Ingestion progress")

	if p.progress != nil {
		r.progressMu.Lock()
		p.progress(pr)
		r.progressMu.Unlock()
	}
}

// commit inserts the vectors of every processed file in discovery order.
// doc_id is the position in metadata, so metadata[id] is always the file
// that produced vector id. Vectors that do not match the dimension of the
// first committed vector are rejected and counted.
func (p *Pipeline) commit(logger zerolog.Logger, results []fileResult) (*hnsw.Index, []string, int, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].seq < results[j].seq })

	ic := p.cfg.Index
	idx := hnsw.New(hnsw.Config{
		M:              ic.M,
		EfConstruction: ic.EfConstruction,
		EfSearch:       ic.EfSearch,
		MaxLayer:       ic.MaxLayer,
		MaxElements:    ic.MaxElements,
		Seed:           ic.Seed,
	})

	metadata := make([]string, 0)
	rejected := 0
	for _, res := range results {
		for _, vec := range res.vectors {
			if len(vec) == 0 || (idx.Len() > 0 && len(vec) != idx.Dim()) {
				rejected++
				logger.Warn().
					Err(&FileError{Path: res.path, Stage: StageCommit, Err: hnsw.ErrDimensionMismatch}).
					Int("dim", len(vec)).
					Int("index_dim", idx.Dim()).
					Msg("Rejected vector")
				continue
			}
			docID := len(metadata)
			if err := idx.Insert(docID, vec); err != nil {
				return nil, nil, rejected, fmt.Errorf("failed to insert %s as %d: %w", res.path, docID, err)
			}
			metadata = append(metadata, res.path)
		}
	}
	return idx, metadata, rejected, nil
}
