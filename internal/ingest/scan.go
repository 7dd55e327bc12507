package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// scanner discovers the files of one run in WalkDir (lexical) order.
type scanner struct {
	root       string
	skipDirs   map[string]bool
	extensions map[string]bool
	outputDir  string
}

func newScanner(root, outputDir string, skipDirs, extensions []string) *scanner {
	s := &scanner{
		root:       root,
		skipDirs:   make(map[string]bool, len(skipDirs)),
		extensions: make(map[string]bool, len(extensions)),
	}
	for _, d := range skipDirs {
		s.skipDirs[d] = true
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.extensions[ext] = true
	}
	if outputDir != "" {
		if abs, err := filepath.Abs(outputDir); err == nil {
			s.outputDir = abs
		}
	}
	return s
}

// scan returns the supported files under root. Directories named in
// skipDirs are pruned at any depth, as is the output directory.
func (s *scanner) scan() ([]string, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRoot, s.root)
	}

	var files []string
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			// Unreadable subtrees are left out rather than failing the run
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == s.root {
				return nil
			}
			if s.skipDirs[d.Name()] || s.isOutputDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}
	return files, nil
}

func (s *scanner) supported(path string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(path))]
}

func (s *scanner) isOutputDir(path string) bool {
	if s.outputDir == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	return err == nil && abs == s.outputDir
}
