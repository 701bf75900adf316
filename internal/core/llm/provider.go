package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/crawlvec/internal/config"
	"github.com/markdave123-py/crawlvec/internal/core"
)

// NewProvider builds the embedding provider selected by EMBED_PROVIDER,
// rate limited by EMBED_RPS. The returned close func releases the client.
func NewProvider(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, func() error, error) {
	noop := func() error { return nil }

	switch cfg.EmbedProvider {
	case "gemini":
		g, err := NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, noop, fmt.Errorf("gemini embedder: %w", err)
		}
		return NewThrottled(g, cfg.EmbedRPS), g.Close, nil
	case "openai", "":
		o, err := NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbedBatchSize)
		if err != nil {
			return nil, noop, err
		}
		return NewThrottled(o, cfg.EmbedRPS), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}
}
