package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/crawlvec/internal/core"
)

// Throttled spaces provider calls with a token bucket.
type Throttled struct {
	next    core.EmbeddingProvider
	limiter *rate.Limiter
}

// NewThrottled wraps p so that at most rps requests per second reach it.
// A non-positive rps returns p unchanged.
func NewThrottled(p core.EmbeddingProvider, rps float64) core.EmbeddingProvider {
	if rps <= 0 {
		return p
	}
	return &Throttled{next: p, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (t *Throttled) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.EmbedTexts(ctx, texts)
}
