package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/crawlvec/internal/core/retry"
	"github.com/markdave123-py/crawlvec/internal/models"
)

func makeChunks(n int) []models.Chunk {
	out := make([]models.Chunk, n)
	for i := range out {
		out[i] = models.Chunk{Content: fmt.Sprintf("chunk-%02d %s", i, strings.Repeat("x", i)), SourceFile: fmt.Sprintf("f%d.txt", i)}
	}
	return out
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
}

func TestBatchEmbedder_PartitionsAndAligns(t *testing.T) {
	p := &fakeProvider{dim: 4}
	b := NewBatchEmbedder(p, fastRetry(), 15, 4, 0)

	chunks := makeChunks(40)
	docs, err := b.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, docs, 40)

	assert.Equal(t, 3, p.Calls())
	assert.Len(t, p.requests[0], 15)
	assert.Len(t, p.requests[1], 15)
	assert.Len(t, p.requests[2], 10)

	for i, d := range docs {
		assert.Equal(t, chunks[i].SourceFile, d.Chunk.SourceFile)
		assert.Equal(t, float32(len(chunks[i].Content)), d.Embedding[0], "vector %d aligned with its chunk", i)
		assert.NotEmpty(t, d.ID)
		assert.False(t, d.CreatedAt.IsZero())
	}
}

func TestBatchEmbedder_RetriesTransientFailure(t *testing.T) {
	p := &fakeProvider{dim: 4, failFor: func(call int, _ []string) error {
		if call == 1 {
			return errors.New("503 service unavailable")
		}
		return nil
	}}
	b := NewBatchEmbedder(p, fastRetry(), 15, 4, 0)

	docs, err := b.EmbedChunks(context.Background(), makeChunks(5))
	require.NoError(t, err)
	assert.Len(t, docs, 5)
	assert.Equal(t, 2, p.Calls())
}

func TestBatchEmbedder_ExhaustedRetries(t *testing.T) {
	p := &fakeProvider{dim: 4, failFor: func(int, []string) error { return errors.New("rate limited") }}
	b := NewBatchEmbedder(p, fastRetry(), 15, 4, 0)

	_, err := b.EmbedChunks(context.Background(), makeChunks(20))
	require.Error(t, err)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "embed", be.Stage)
	assert.Equal(t, 0, be.Request)
	assert.Equal(t, 3, be.Attempts)
	assert.Equal(t, 3, p.Calls(), "no request after the failing one")
}

func TestBatchEmbedder_CountMismatchIsNotRetried(t *testing.T) {
	p := &badProvider{}
	b := NewBatchEmbedder(p, fastRetry(), 15, 0, 0)

	_, err := b.EmbedChunks(context.Background(), makeChunks(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")
	assert.Equal(t, 1, p.calls)
}

func TestBatchEmbedder_DimensionChecked(t *testing.T) {
	p := &fakeProvider{dim: 3}
	b := NewBatchEmbedder(p, fastRetry(), 15, 4, 0)

	_, err := b.EmbedChunks(context.Background(), makeChunks(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 3")
	assert.Equal(t, 1, p.Calls())
}

func TestBatchEmbedder_DelayBetweenRequests(t *testing.T) {
	p := &fakeProvider{dim: 2}
	b := NewBatchEmbedder(p, fastRetry(), 2, 2, 250*time.Millisecond)

	var slept []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := b.EmbedChunks(context.Background(), makeChunks(5))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Calls())
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, slept, "no delay after the last request")
}

func TestBatchEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{dim: 2, failFor: func(int, []string) error {
		cancel()
		return context.Canceled
	}}
	b := NewBatchEmbedder(p, fastRetry(), 15, 2, 0)

	_, err := b.EmbedChunks(ctx, makeChunks(2))
	assert.ErrorIs(t, err, context.Canceled)

	var be *BatchError
	assert.False(t, errors.As(err, &be))
}

func TestBatchEmbedder_Empty(t *testing.T) {
	p := &fakeProvider{dim: 2}
	docs, err := NewBatchEmbedder(p, fastRetry(), 15, 2, 0).EmbedChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 0, p.Calls())
}

type badProvider struct{ calls int }

func (b *badProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	b.calls++
	return [][]float32{{1}}, nil
}
