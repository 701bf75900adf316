package ingestion_engine

import (
	"context"
	"log/slog"

	"github.com/markdave123-py/crawlvec/internal/core"
	"github.com/markdave123-py/crawlvec/internal/core/retry"
	"github.com/markdave123-py/crawlvec/internal/models"
)

// StorageWriter persists one file batch of embedded documents with retries.
type StorageWriter struct {
	db     core.DbClient
	policy retry.Policy
	log    *slog.Logger
}

func NewStorageWriter(db core.DbClient, policy retry.Policy) *StorageWriter {
	return &StorageWriter{
		db:     db,
		policy: policy,
		log:    slog.Default().With("component", "storage_writer"),
	}
}

// Write stores docs as batch of runID. A retried write replaces whatever an
// earlier attempt committed for the same batch.
func (w *StorageWriter) Write(ctx context.Context, runID string, batch int, docs []models.EmbeddedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	res := retry.DoErr(ctx, w.policy, func(ctx context.Context) error {
		return w.db.WriteBatch(ctx, runID, batch, docs)
	})
	if res.Err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &BatchError{Stage: "store", Attempts: res.Attempts, Err: res.Err}
	}
	w.log.Debug("batch stored", "batch", batch, "documents", len(docs), "attempts", res.Attempts)
	return nil
}

// ReplaceScope deletes the rows a fresh run is about to rewrite.
func (w *StorageWriter) ReplaceScope(ctx context.Context, scope models.Scope) (int64, error) {
	res := retry.Do(ctx, w.policy, func(ctx context.Context) (int64, error) {
		return w.db.DeleteScope(ctx, scope)
	})
	return res.Value, res.Err
}
