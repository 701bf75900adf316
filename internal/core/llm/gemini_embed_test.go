package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, embed batchEmbedFunc) *GeminiEmbedder {
	t.Helper()
	g, err := NewGeminiEmbedder(context.Background(), "test-key", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	g.embed = embed
	return g
}

func TestGeminiEmbedder_DefaultModel(t *testing.T) {
	g := newTestGemini(t, nil)
	assert.Equal(t, "gemini-embedding-001", g.modelName)
}

func TestGeminiEmbedder_EmptyInputMakesNoRequest(t *testing.T) {
	calls := 0
	g := newTestGemini(t, func(context.Context, *genai.EmbeddingModel, *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error) {
		calls++
		return &genai.BatchEmbedContentsResponse{}, nil
	})

	out, err := g.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Zero(t, calls)
}

func TestGeminiEmbedder_EmbedTexts(t *testing.T) {
	calls := 0
	g := newTestGemini(t, func(ctx context.Context, em *genai.EmbeddingModel, b *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error) {
		calls++
		return &genai.BatchEmbedContentsResponse{Embeddings: []*genai.ContentEmbedding{
			{Values: []float32{0.1, 0.2}},
			{Values: []float32{0.3, 0.4}},
		}}, nil
	})

	out, err := g.EmbedTexts(context.Background(), []string{"학과 소개", "도서관"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, out)
	assert.Equal(t, 1, calls, "one batch request for all texts")
}

func TestGeminiEmbedder_Errors(t *testing.T) {
	g := newTestGemini(t, func(context.Context, *genai.EmbeddingModel, *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error) {
		return nil, errors.New("quota exceeded")
	})
	_, err := g.EmbedTexts(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	g.embed = func(context.Context, *genai.EmbeddingModel, *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error) {
		return &genai.BatchEmbedContentsResponse{Embeddings: []*genai.ContentEmbedding{{Values: []float32{1}}}}, nil
	}
	_, err = g.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "got 1 embeddings for 2 texts")
}
