package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/crawlvec/internal/config"
)

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestNewThrottled_ZeroRateReturnsProvider(t *testing.T) {
	p := &countingProvider{}
	assert.Same(t, p, NewThrottled(p, 0))
}

func TestThrottled_SpacesCalls(t *testing.T) {
	p := &countingProvider{}
	th := NewThrottled(p, 20) // one call every 50ms

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := th.EmbedTexts(context.Background(), []string{"a"})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestThrottled_RespectsContext(t *testing.T) {
	p := &countingProvider{}
	th := NewThrottled(p, 0.001)
	_, err := th.EmbedTexts(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = th.EmbedTexts(ctx, []string{"b"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestApproxCounter(t *testing.T) {
	c := ApproxCounter{}
	assert.Equal(t, 0, c.CountTokens(""))
	assert.Equal(t, 1, c.CountTokens("abc"))
	assert.Equal(t, 2, c.CountTokens("abcde"))
	assert.Equal(t, 1, c.CountTokens("대학교"), "counts runes, not bytes")
}

func TestNewProvider_Unknown(t *testing.T) {
	_, closeFn, err := NewProvider(context.Background(), &config.Config{EmbedProvider: "cohere"})
	require.Error(t, err)
	assert.NoError(t, closeFn())
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "", "text-embedding-3-small", 15)
	assert.Error(t, err)
}

func TestOpenAIEmbedder_EmbedTexts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(i), 0.5}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder("sk-test", srv.URL, "text-embedding-3-small", 15)
	require.NoError(t, err)

	vecs, err := emb.EmbedTexts(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2, 0.5}, vecs[2])
	assert.Equal(t, int32(1), requests.Load(), "one request per call")

	empty, err := emb.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder("sk-test", srv.URL, "text-embedding-3-small", 15)
	require.NoError(t, err)

	_, err = emb.EmbedTexts(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
