package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	d := config.Default()
	assert.Equal(t, d.Embedding.Model, cfg.Embedding.Model)
	assert.Equal(t, "http://127.0.0.1:11434/api/embeddings", cfg.Embedding.Endpoint)
	assert.Equal(t, 60*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 3, cfg.Embedding.MaxAttempts)
	assert.Equal(t, 100, cfg.Embedding.MinDimension)
	assert.Equal(t, 16, cfg.Index.M)
	assert.Equal(t, 200, cfg.Index.EfConstruction)
	assert.Equal(t, 20, cfg.Index.EfSearch)
	assert.Equal(t, 250, cfg.Ingest.ChunkSize)
	assert.Equal(t, d.Ingest.SkipDirs, cfg.Ingest.SkipDirs)
	assert.Equal(t, []string{".md", ".json", ".jsonl"}, cfg.Ingest.Extensions)
	assert.Equal(t, 3, cfg.Query.NumResults)
	assert.Equal(t, 800, cfg.Query.MaxContextChars)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "rag.yaml")
	content := `
embedding:
  model: nomic-embed-text
  max_attempts: 5
ingest:
  chunk_size: 120
  skip_dirs: [vendor]
query:
  num_results: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("RAG_CHAT_MODEL", "llama3")
	t.Setenv("RAG_EMBEDDING_TIMEOUT", "5s")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 5, cfg.Embedding.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, "llama3", cfg.Chat.Model)
	assert.Equal(t, 120, cfg.Ingest.ChunkSize)
	assert.Equal(t, []string{"vendor"}, cfg.Ingest.SkipDirs)
	assert.Equal(t, 7, cfg.Query.NumResults)
	// untouched keys keep their defaults
	assert.Equal(t, 250, cfg.Ingest.MaxChunkSize)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RAG_QUERY_NUM_RESULTS=9\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RAG_QUERY_NUM_RESULTS") })

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Query.NumResults)
}

func TestLoadWithViperFlagOverride(t *testing.T) {
	t.Chdir(t.TempDir())

	v := viper.New()
	v.Set("ingest.concurrency", 2)

	cfg, err := config.LoadWithViper(v, "")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Ingest.Concurrency)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty embedding model", func(c *config.Config) { c.Embedding.Model = "" }},
		{"zero attempts", func(c *config.Config) { c.Embedding.MaxAttempts = 0 }},
		{"small m", func(c *config.Config) { c.Index.M = 1 }},
		{"m below floor", func(c *config.Config) { c.Index.M = config.MinIndexM - 1 }},
		{"zero chunk size", func(c *config.Config) { c.Ingest.ChunkSize = 0 }},
		{"zero concurrency", func(c *config.Config) { c.Ingest.Concurrency = 0 }},
		{"zero results", func(c *config.Config) { c.Query.NumResults = 0 }},
		{"bad port", func(c *config.Config) { c.Server.Port = 70000 }},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := config.Default()
	assert.NoError(t, cfg.Validate())

	cfg.Index.M = config.MinIndexM
	assert.NoError(t, cfg.Validate())
}

func TestDumpAndRunValues(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.Root = "/srv/notes"

	out, err := cfg.Dump()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "embedding")
	assert.Contains(t, decoded, "index")

	assert.Equal(t, filepath.Join("/srv/notes", "data"), cfg.IngestOutputDir())

	ic := cfg.IngestConfig()
	assert.Equal(t, "/srv/notes", ic.Root)
	assert.Equal(t, filepath.Join("/srv/notes", "data"), ic.OutputDir)
	assert.Equal(t, "index", ic.Basename)

	qc := cfg.QueryConfig()
	assert.Equal(t, 3, qc.NumResults)
	assert.Equal(t, 20, qc.SearchEf)
}

func TestRunValuesFromDefaults(t *testing.T) {
	qc := config.Default().QueryConfig()
	assert.Equal(t, "data", qc.DataDir)
	assert.Equal(t, "index", qc.Basename)
	assert.Equal(t, 800, qc.MaxContextChars)

	ic := config.Default().IngestConfig()
	assert.Equal(t, filepath.Join(".", "data"), ic.OutputDir)
	assert.Equal(t, config.Default().IngestOutputDir(), ic.OutputDir)
}
