// Package snapshot persists an HNSW index together with the file metadata
// aligned to its node ids.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/fsutil"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/hnsw"
)

// MetadataFile is the name of the metadata file inside a snapshot directory.
const MetadataFile = "meta.json"

// ErrSnapshot wraps every failure to read a snapshot.
var ErrSnapshot = errors.New("snapshot unavailable")

// Snapshot is a loaded index and its metadata. Metadata[id] is the path of
// the file that produced the vector stored under id.
type Snapshot struct {
	Index    *hnsw.Index
	Metadata []string
}

// Source returns the file path recorded for id.
func (s *Snapshot) Source(id int) (string, bool) {
	if id < 0 || id >= len(s.Metadata) {
		return "", false
	}
	return s.Metadata[id], true
}

// Save creates dir if needed, dumps idx under basename and writes the
// metadata file. The index files are written first; a metadata failure
// still fails the call.
func Save(dir, basename string, idx *hnsw.Index, metadata []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := idx.Dump(dir, basename); err != nil {
		return fmt.Errorf("failed to dump index: %w", err)
	}

	if metadata == nil {
		metadata = []string{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, MetadataFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save. efSearch > 0 overrides the search
// effort recorded in the index.
func Load(dir, basename string, efSearch int) (*Snapshot, error) {
	idx, err := hnsw.Load(dir, basename, efSearch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	var metadata []string
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("%w: malformed %s: %w", ErrSnapshot, MetadataFile, err)
	}

	return &Snapshot{Index: idx, Metadata: metadata}, nil
}

// Exists reports whether dir holds the files of a snapshot named basename.
func Exists(dir, basename string) bool {
	graph, data := hnsw.Files(dir, basename)
	for _, p := range []string{graph, data, filepath.Join(dir, MetadataFile)} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
