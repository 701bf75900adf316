package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/crawlvec/internal/config"
	"github.com/markdave123-py/crawlvec/internal/core"
	"github.com/markdave123-py/crawlvec/internal/models"
)

type DatabaseClient struct {
	db  *sql.DB
	log *slog.Logger
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// One ingestion job writes a transaction at a time; keep the pool small.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, log: slog.Default().With("component", "database")}, nil
}

// buildDSN appends certificate verification to databaseURL when a root
// certificate is configured.
func buildDSN(databaseURL, certPath string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DeleteScope removes rows of the scope's source type whose domain or
// collection metadata matches.
func (c *DatabaseClient) DeleteScope(ctx context.Context, scope models.Scope) (int64, error) {
	if len(scope.Domains) == 0 && len(scope.Collections) == 0 {
		return 0, nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}

	const q = `
		DELETE FROM documents
		WHERE source_type = $1
		  AND (metadata->>'domain' = ANY($2) OR metadata->>'collection' = ANY($3))
	`
	res, err := tx.ExecContext(ctx, q, scope.SourceType, nonNil(scope.Domains), nonNil(scope.Collections))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("delete scope: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	c.log.Info("scope deleted", "source_type", scope.SourceType, "rows", n)
	return n, nil
}

// WriteBatch replaces the rows of (runID, batch) with docs in one
// transaction, so a retried batch never leaves duplicates.
func (c *DatabaseClient) WriteBatch(ctx context.Context, runID string, batch int, docs []models.EmbeddedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const del = `
		DELETE FROM documents
		WHERE metadata->>'run_id' = $1 AND (metadata->>'batch')::int = $2
	`
	if _, err := tx.ExecContext(ctx, del, runID, batch); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear batch %d: %w", batch, err)
	}

	const q = `
		INSERT INTO documents
			(content, embedding, source_type, source_file, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range docs {
		d := &docs[i]
		if len(d.Embedding) == 0 {
			_ = tx.Rollback()
			return errors.New("document without embedding")
		}
		meta, err := json.Marshal(d.Chunk.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata: %w", err)
		}
		var created any
		if !d.CreatedAt.IsZero() {
			created = d.CreatedAt
		}
		vec := pgvector.NewVector(d.Embedding)
		if _, err := stmt.ExecContext(ctx,
			d.Chunk.Content, vec, d.Chunk.SourceType, d.Chunk.SourceFile, string(meta), created,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", d.Chunk.SourceFile, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) CountDocuments(ctx context.Context, sourceType string) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE source_type = $1`, sourceType).Scan(&n)
	return n, err
}

// nonNil keeps ANY($n) from receiving a NULL array.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
