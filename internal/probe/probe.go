// Package probe finds the largest input the embedding service accepts by
// embedding generated texts of growing size until one fails.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/embedding"
)

// Range defaults used when no explicit size list is given.
const (
	DefaultStart = 10
	DefaultEnd   = 3000
	DefaultStep  = 100
)

// ErrNoSizes is returned when a size list or range selects nothing.
var ErrNoSizes = errors.New("no sizes to probe")

// Sizes returns the sizes named in list (comma separated), or start..end
// inclusive in step increments when list is blank. Entries of list that are
// not positive integers are ignored.
func Sizes(list string, start, end, step int) ([]int, error) {
	var out []int
	if strings.TrimSpace(list) != "" {
		for _, part := range strings.Split(list, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n <= 0 {
				continue
			}
			out = append(out, n)
		}
	} else {
		if step <= 0 {
			return nil, fmt.Errorf("step must be positive, got %d", step)
		}
		for n := start; n <= end; n += step {
			if n > 0 {
				out = append(out, n)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoSizes
	}
	return out, nil
}

// TimeoutFor is the time allowed to embed a text of size characters.
func TimeoutFor(size int) time.Duration {
	switch {
	case size <= 100:
		return 15 * time.Second
	case size <= 500:
		return 30 * time.Second
	case size <= 1000:
		return 60 * time.Second
	case size <= 2000:
		return 90 * time.Second
	default:
		return 120 * time.Second
	}
}

// Attempt is the outcome for one size.
type Attempt struct {
	Size       int
	Dimensions int
	Elapsed    time.Duration
	TimedOut   bool
	Err        error
}

// Report summarizes a probe run.
type Report struct {
	Attempts []Attempt
	// MaxSuccess is the largest size embedded before the first failure, 0 if none.
	MaxSuccess int
	LogFile    string
}

// Prober runs size probes through an embedding client, so every attempt
// goes through the client's validation and retry policy.
type Prober struct {
	embedder embedding.Embedder
	logger   zerolog.Logger
	pause    time.Duration
	timeout  func(size int) time.Duration
	now      func() time.Time
}

// Option configures a Prober
type Option func(*Prober)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Prober) { p.logger = l }
}

// WithPause sets the delay between sizes
func WithPause(d time.Duration) Option {
	return func(p *Prober) { p.pause = d }
}

// WithTimeoutFunc replaces TimeoutFor
func WithTimeoutFunc(fn func(size int) time.Duration) Option {
	return func(p *Prober) { p.timeout = fn }
}

// WithClock replaces time.Now for log file naming
func WithClock(now func() time.Time) Option {
	return func(p *Prober) { p.now = now }
}

// New creates a Prober.
func New(embedder embedding.Embedder, opts ...Option) *Prober {
	p := &Prober{
		embedder: embedder,
		logger:   zerolog.Nop(),
		pause:    2 * time.Second,
		timeout:  TimeoutFor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run probes sizes in order and stops at the first failure. A log of the
// run is written to logDir as embedding_size_test_<timestamp>.log.
func (p *Prober) Run(ctx context.Context, sizes []int, logDir string) (*Report, error) {
	if len(sizes) == 0 {
		return nil, ErrNoSizes
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	started := p.now()
	report := &Report{
		LogFile: filepath.Join(logDir, "embedding_size_test_"+started.Format("20060102_150405")+".log"),
	}
	f, err := os.Create(report.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	logf := func(format string, args ...any) {
		_, _ = fmt.Fprintf(f, format+"\n", args...)
	}
	logf("EMBEDDING SIZE TEST")
	logf("Started at: %s", started.Format(time.DateTime))
	logf("Testing sizes: %v", sizes)

	for i, size := range sizes {
		if i > 0 && p.pause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(p.pause):
			}
		}

		a := p.attempt(ctx, size)
		report.Attempts = append(report.Attempts, a)

		logf("--------------------------------------------")
		logf("Testing size: %d characters", size)
		switch {
		case a.TimedOut:
			logf("TIMEOUT after %s", p.timeout(size))
			p.logger.Warn().Int("size", size).Dur("timeout", p.timeout(size)).Msg("Embedding timed out")
		case a.Err != nil:
			logf("ERROR: %v", a.Err)
			p.logger.Warn().Err(a.Err).Int("size", size).Msg("Embedding failed")
		default:
			logf("SUCCESS - Embedding generated in %s", a.Elapsed)
			logf("Vector dimensions: %d", a.Dimensions)
			p.logger.Info().Int("size", size).Dur("elapsed", a.Elapsed).Int("dimensions", a.Dimensions).Msg("Embedding succeeded")
			report.MaxSuccess = size
			continue
		}
		if ctx.Err() != nil {
			logf("Cancelled")
			return report, ctx.Err()
		}
		break
	}

	logf("====================================================")
	logf("TEST COMPLETE")
	logf("Maximum successful text size: %d characters", report.MaxSuccess)
	logf("Finished at: %s", p.now().Format(time.DateTime))
	return report, nil
}

func (p *Prober) attempt(ctx context.Context, size int) Attempt {
	ctx, cancel := context.WithTimeout(ctx, p.timeout(size))
	defer cancel()

	start := time.Now()
	vec, err := p.embedder.Embed(ctx, strings.Repeat("X", size))
	a := Attempt{Size: size, Elapsed: time.Since(start), Err: err, Dimensions: len(vec)}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		a.TimedOut = true
	}
	return a
}
