package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/config"
)

func TestOllamaProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic", req.Model)
		assert.Equal(t, "hello world", req.Prompt)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/api/embeddings", time.Second)
	v, err := p.Embed(context.Background(), "nomic", "hello world")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, v, 1e-6)
}

func TestOllamaProviderErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewOllamaProvider(srv.URL, time.Second).Embed(context.Background(), "m", "x")
		assert.ErrorIs(t, err, ErrService)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("bad body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}))
		defer srv.Close()

		_, err := NewOllamaProvider(srv.URL, time.Second).Embed(context.Background(), "m", "x")
		assert.ErrorIs(t, err, ErrService)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()

		_, err := NewOllamaProvider(srv.URL, 20*time.Millisecond).Embed(context.Background(), "m", "x")
		assert.ErrorIs(t, err, ErrService)
	})
}

func TestClientOverHTTPRejectsOverflowRegardlessOfStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// 1e300 does not fit a float32 and becomes +Inf.
		_, _ = w.Write([]byte(`{"embedding":[1e300,0.5,0.5,0.5]}`))
	}))
	defer srv.Close()

	c := NewClient(NewOllamaProvider(srv.URL, time.Second),
		WithMinDimension(4), WithTimer(&instantTimer{}), WithBaseDelay(time.Millisecond))

	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrInvalidOutput)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientOverHTTPRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 2, 3, 4}})
	}))
	defer srv.Close()

	c := NewClient(NewOllamaProvider(srv.URL, time.Second),
		WithMinDimension(4), WithMaxAttempts(3), WithTimer(&instantTimer{}), WithBaseDelay(time.Millisecond))

	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, int32(3), hits.Load())
}

func TestOllamaProviderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		_, _ = w.Write([]byte(`{"version":"0.3.12"}`))
	}))
	defer srv.Close()

	c := NewClient(NewOllamaProvider(srv.URL+"/api/embeddings", time.Second))
	version, err := c.CheckStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.3.12", version)
}

func TestOpenAIProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.5, 0.25, 0.125}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL+"/v1", "sk-test", time.Second)
	v, err := p.Embed(context.Background(), "text-embedding-3-small", "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 0.125}, v)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default().Embedding
	c, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "harald-phi4", c.Model())
	assert.IsType(t, &OllamaProvider{}, c.provider)

	cfg.Provider = "openai"
	c, err = NewFromConfig(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, c.provider)

	cfg.Provider = "bedrock"
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)
}
