package core

import (
	"context"
	"io"

	"github.com/markdave123-py/crawlvec/internal/models"
)

// DbClient defines the persistence operations the ingestion pipeline needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	// DeleteScope removes every stored row matching the scope in one transaction.
	DeleteScope(ctx context.Context, scope models.Scope) (int64, error)

	// WriteBatch replaces the rows tagged with (runID, batch) by docs in one transaction.
	WriteBatch(ctx context.Context, runID string, batch int, docs []models.EmbeddedDocument) error

	CountDocuments(ctx context.Context, sourceType string) (int64, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
