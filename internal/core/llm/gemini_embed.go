package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/crawlvec/internal/core"
)

type batchEmbedFunc func(ctx context.Context, em *genai.EmbeddingModel, b *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	embed     batchEmbedFunc
	log       *slog.Logger
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-embedding-001"
	}
	return &GeminiEmbedder{
		client:    cl,
		modelName: modelName,
		embed:     batchEmbedContents,
		log:       slog.Default().With("component", "gemini-embedder"),
	}, nil
}

func batchEmbedContents(ctx context.Context, em *genai.EmbeddingModel, b *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error) {
	return em.BatchEmbedContents(ctx, b)
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts batches all texts in one request via BatchEmbedContents.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	g.log.Debug("embedding batch", "count", len(texts))
	resp, err := g.embed(ctx, em, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
