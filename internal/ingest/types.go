// Package ingest walks a directory tree, chunks and embeds every supported
// file and persists the resulting index snapshot.
package ingest

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRoot is returned when the ingest root is missing or not a directory.
	ErrRoot = errors.New("invalid ingest root")
	// ErrNoChunks marks a file that produced no embeddable text.
	ErrNoChunks = errors.New("no embeddable content")
	// ErrNoEmbeddings marks a file whose chunks all failed to embed.
	ErrNoEmbeddings = errors.New("no chunk could be embedded")
)

// Stages reported in FileError.
const (
	StageRead   = "read"
	StageParse  = "parse"
	StageChunk  = "chunk"
	StageEmbed  = "embed"
	StageCommit = "commit"
)

// FileError describes why one file was skipped. It never aborts a run.
type FileError struct {
	Path  string
	Stage string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Stats summarizes one ingestion run.
type Stats struct {
	RunID          string
	Processed      int
	Skipped        int
	Entries        int
	FailedChunks   int
	MalformedLines int
	OutputDir      string
	Duration       time.Duration
}

// Summary is the line printed when a run succeeds.
func (s *Stats) Summary() string {
	return fmt.Sprintf("Ingestion complete: %d files processed, %d files skipped -> %s",
		s.Processed, s.Skipped, s.OutputDir)
}

// Progress is reported every ProgressInterval completed files.
type Progress struct {
	Done      int
	Total     int
	Processed int
	Skipped   int
}

// ProgressFunc receives progress reports. It may be called from several
// goroutines, one call at a time.
type ProgressFunc func(Progress)

// fileResult is what one file contributes to the commit phase.
type fileResult struct {
	seq     int
	path    string
	vectors [][]float32
}
