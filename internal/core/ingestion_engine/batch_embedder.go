package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/crawlvec/internal/core"
	"github.com/markdave123-py/crawlvec/internal/core/retry"
	"github.com/markdave123-py/crawlvec/internal/models"
)

// BatchError reports a group of chunks whose retries were exhausted.
type BatchError struct {
	Stage    string // embed | store
	Request  int    // index of the failing request within the batch
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s request %d failed after %d attempts: %v", e.Stage, e.Request, e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// BatchEmbedder turns chunks into embedded documents, one provider request
// per BatchSize chunks.
type BatchEmbedder struct {
	provider  core.EmbeddingProvider
	policy    retry.Policy
	batchSize int
	dim       int
	delay     time.Duration
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	log       *slog.Logger
}

func NewBatchEmbedder(p core.EmbeddingProvider, policy retry.Policy, batchSize, dim int, delay time.Duration) *BatchEmbedder {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchEmbedder{
		provider:  p,
		policy:    policy,
		batchSize: batchSize,
		dim:       dim,
		delay:     delay,
		now:       time.Now,
		sleep:     sleepCtx,
		log:       slog.Default().With("component", "batch_embedder"),
	}
}

// EmbedChunks embeds chunks in order. The returned documents are aligned with
// chunks. The first request that exhausts its retries aborts the call with a
// *BatchError; context cancellation is returned as is.
func (b *BatchEmbedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedDocument, error) {
	out := make([]models.EmbeddedDocument, 0, len(chunks))

	for req, start := 0, 0; start < len(chunks); req, start = req+1, start+b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		group := chunks[start:end]

		texts := make([]string, len(group))
		for i := range group {
			texts[i] = group[i].Content
		}

		res := retry.Do(ctx, b.policy, func(ctx context.Context) ([][]float32, error) {
			vecs, err := b.provider.EmbedTexts(ctx, texts)
			if err != nil {
				return nil, err
			}
			if err := b.checkVectors(vecs, len(texts)); err != nil {
				return nil, retry.Permanent(err)
			}
			return vecs, nil
		})
		if res.Err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &BatchError{Stage: "embed", Request: req, Attempts: res.Attempts, Err: res.Err}
		}
		if res.Attempts > 1 {
			b.log.Info("embedding request recovered", "request", req, "attempts", res.Attempts)
		}

		created := b.now().UTC()
		for i := range group {
			out = append(out, models.EmbeddedDocument{
				ID:        uuid.NewString(),
				Chunk:     group[i],
				Embedding: res.Value[i],
				CreatedAt: created,
			})
		}

		if end < len(chunks) && b.delay > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (b *BatchEmbedder) checkVectors(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), want)
	}
	if b.dim <= 0 {
		return nil
	}
	for i, v := range vecs {
		if len(v) != b.dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), b.dim)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
