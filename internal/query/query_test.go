package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chat"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/hnsw"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/metrics"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/snapshot"
)

type staticEmbedder struct {
	vec []float32
	err error
}

func (e staticEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vec, e.err
}

type recordingChat struct {
	answer   string
	err      error
	messages []chat.Message
}

func (c *recordingChat) Complete(_ context.Context, messages []chat.Message) (string, error) {
	c.messages = messages
	return c.answer, c.err
}

// fixture writes three source files and a snapshot whose entries 0 and 1
// both point at a.md.
func fixture(t *testing.T, metadata []string) (config.QueryConfig, string) {
	t.Helper()
	root := t.TempDir()
	a := filepath.Join(root, "a.md")
	b := filepath.Join(root, "b.json")
	require.NoError(t, os.WriteFile(a, []byte("alpha document"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{"name": "beta"}`), 0o644))

	if metadata == nil {
		metadata = []string{a, a, b}
	}

	idx := hnsw.New(hnsw.DefaultConfig())
	for i, v := range [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}} {
		require.NoError(t, idx.Insert(i, v))
	}
	dataDir := filepath.Join(root, "data")
	require.NoError(t, snapshot.Save(dataDir, "index", idx, metadata))

	cfg := config.Default()
	cfg.Query.DataDir = dataDir
	return cfg.QueryConfig(), root
}

func TestAnswer(t *testing.T) {
	cfg, root := fixture(t, nil)
	cfg.NumResults = 5
	a, b := filepath.Join(root, "a.md"), filepath.Join(root, "b.json")

	c := &recordingChat{answer: "Alpha is a document."}
	m := metrics.New()
	e := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0.05, 0}}, c, WithMetrics(m))

	res, err := e.Answer(context.Background(), "what is alpha?")
	require.NoError(t, err)
	assert.Equal(t, "Alpha is a document.", res.Answer)
	assert.Equal(t, []string{a, a, b}, res.Sources, "k=5 over 3 entries returns all 3")
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, []string{a, b}, res.UniqueSources())

	require.Len(t, c.messages, 1)
	assert.Equal(t, chat.RoleUser, c.messages[0].Role)
	assert.Equal(t,
		"alpha document\n\nalpha document\n\n{\"name\": \"beta\"}\n\nwhat is alpha?",
		c.messages[0].Content)
}

func TestRetrieveTruncatesContext(t *testing.T) {
	cfg, _ := fixture(t, nil)
	cfg.NumResults = 1
	cfg.MaxContextChars = 5

	r, err := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0, 0}}, &recordingChat{}).
		Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, r.Hits, 1)
	assert.Equal(t, 0, r.Hits[0].DocID)
	assert.InDelta(t, 0, r.Hits[0].Distance, 1e-6)
	assert.Equal(t, "alpha", r.Context)
}

func TestRetrieveSkipsUnreadableSources(t *testing.T) {
	cfg, root := fixture(t, nil)
	require.NoError(t, os.Remove(filepath.Join(root, "a.md")))

	r, err := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0, 0}}, &recordingChat{}).
		Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, r.Hits, 3)
	assert.Equal(t, []string{filepath.Join(root, "b.json")}, r.Sources)
	assert.Equal(t, `{"name": "beta"}`, r.Context)
}

func TestAnswerErrors(t *testing.T) {
	t.Run("missing snapshot", func(t *testing.T) {
		cfg := config.Default().QueryConfig()
		cfg.DataDir = t.TempDir()
		_, err := NewEngine(cfg, staticEmbedder{vec: []float32{1}}, &recordingChat{answer: "x"}).
			Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrIndexLoad)
		assert.ErrorIs(t, err, snapshot.ErrSnapshot)
	})

	t.Run("empty index", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, snapshot.Save(dir, "index", hnsw.New(hnsw.DefaultConfig()), nil))
		cfg := config.Default().QueryConfig()
		cfg.DataDir = dir

		c := &recordingChat{answer: "should not be asked"}
		res, err := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0}}, c).Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrNoResults)
		assert.Nil(t, res)
		assert.Nil(t, c.messages)
	})

	t.Run("embedding failure", func(t *testing.T) {
		cfg, _ := fixture(t, nil)
		embedErr := errors.New("service down")
		_, err := NewEngine(cfg, staticEmbedder{err: embedErr}, &recordingChat{answer: "x"}).
			Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrEmbedding)
		assert.ErrorIs(t, err, embedErr)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		cfg, _ := fixture(t, nil)
		_, err := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0}}, &recordingChat{answer: "x"}).
			Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrEmbedding)
		assert.ErrorIs(t, err, hnsw.ErrDimensionMismatch)
	})

	t.Run("metadata shorter than index", func(t *testing.T) {
		cfg, _ := fixture(t, []string{"only-one"})
		cfg.NumResults = 3
		_, err := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0, 0}}, &recordingChat{answer: "x"}).
			Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrConsistency)
	})

	t.Run("empty answer", func(t *testing.T) {
		cfg, _ := fixture(t, nil)
		_, err := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0, 0}}, &recordingChat{err: chat.ErrEmptyResponse}).
			Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("chat failure", func(t *testing.T) {
		cfg, _ := fixture(t, nil)
		_, err := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0, 0}}, &recordingChat{err: chat.ErrService}).
			Answer(context.Background(), "q")
		assert.ErrorIs(t, err, ErrChat)
		assert.ErrorIs(t, err, chat.ErrService)
	})
}

func TestWithSnapshotSkipsDisk(t *testing.T) {
	idx := hnsw.New(hnsw.DefaultConfig())
	require.NoError(t, idx.Insert(0, []float32{1, 0}))
	src := filepath.Join(t.TempDir(), "x.md")
	require.NoError(t, os.WriteFile(src, []byte(strings.Repeat("x", 10)), 0o644))

	cfg := config.Default().QueryConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "does-not-exist")
	e := NewEngine(cfg, staticEmbedder{vec: []float32{1, 0}}, &recordingChat{answer: "ok"},
		WithSnapshot(&snapshot.Snapshot{Index: idx, Metadata: []string{src}}))

	res, err := e.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{src}, res.Sources)
}
