package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/crawlvec/internal/config"
	"github.com/markdave123-py/crawlvec/internal/core/corpus"
	"github.com/markdave123-py/crawlvec/internal/core/retry"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize / ChunkOverlap / MinChunkLength: chunk window in runes.
// EmbedBatchSize: chunks per embedding request.
// FilesPerBatch:  canonical files per checkpointed batch.
// EmbedDelay:     pause between embedding requests.
// BatchDelay:     pause between file batches.
// EmbedDim:       expected vector dimension (0 skips the check).
type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
	EmbedBatchSize int
	FilesPerBatch  int
	EmbedDelay     time.Duration
	BatchDelay     time.Duration
	EmbedDim       int
	Retry          retry.Policy
	Filter         FilterConfig
	CheckpointPath string
}

// IngestConfigFrom maps the environment config onto pipeline settings.
func IngestConfigFrom(cfg *config.Config) IngestConfig {
	return IngestConfig{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		MinChunkLength: cfg.MinChunkLength,
		EmbedBatchSize: cfg.EmbedBatchSize,
		FilesPerBatch:  cfg.FilesPerBatch,
		EmbedDelay:     cfg.EmbedDelay,
		BatchDelay:     cfg.BatchDelay,
		EmbedDim:       cfg.EmbedDim,
		Retry: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
			Timeout:     cfg.RequestTimeout,
		},
		Filter: FilterConfig{
			MinContentLength:    cfg.MinContentLength,
			MinKeywordHits:      cfg.MinKeywordHits,
			RepetitionThreshold: cfg.RepetitionThreshold,
			Extractor:           NewHTMLExtractor(false),
		},
		CheckpointPath: cfg.CheckpointPath,
	}
}

// Collection is a crawl run ready to be read.
type Collection struct {
	Name     string
	Priority int
	Source   corpus.Source
}
