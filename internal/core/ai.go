package core

import "context"

// EmbeddingProvider turns texts into vectors. The returned slice is positionally
// aligned with texts.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TokenCounter reports the token length of a text for chunk statistics.
type TokenCounter interface {
	CountTokens(text string) int
}
