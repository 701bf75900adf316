package models

import (
	"time"
)

// SourceTypeWebsite is the source_type written for every crawled page chunk.
const SourceTypeWebsite = "website"

// RawCrawlRecord is one crawl file split into header metadata and body.
type RawCrawlRecord struct {
	URL              string            `json:"url"`
	Domain           string            `json:"domain"`
	Depth            int               `json:"depth"`
	DeclaredLength   int               `json:"declared_length"`
	Timestamp        time.Time         `json:"timestamp"`
	SourceCollection string            `json:"source_collection"`
	SourceFile       string            `json:"source_file"`
	RawBody          string            `json:"-"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// CanonicalEntry is the single surviving record for a normalized URL.
type CanonicalEntry struct {
	URL              string            `json:"url"`
	Domain           string            `json:"domain"`
	Depth            int               `json:"depth"`
	SourceCollection string            `json:"source_collection"`
	Priority         int               `json:"priority"`
	Timestamp        time.Time         `json:"timestamp"`
	DeclaredLength   int               `json:"declared_length"`
	SourceFile       string            `json:"source_file"`
	Extra            map[string]string `json:"extra,omitempty"`
	Body             string            `json:"-"` // cleaned text; reloaded from SourceFile on resume
}

// ChunkMetadata is stored verbatim in the metadata jsonb column.
type ChunkMetadata struct {
	URL         string            `json:"url"`
	Domain      string            `json:"domain"`
	Collection  string            `json:"collection"`
	Depth       int               `json:"depth"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Length      int               `json:"length"`
	Tokens      int               `json:"tokens"`
	RunID       string            `json:"run_id,omitempty"`
	Batch       int               `json:"batch"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Chunk is a bounded-length text fragment derived from one canonical entry.
type Chunk struct {
	Content    string        `json:"content"`
	SourceFile string        `json:"source_file"`
	SourceType string        `json:"source_type"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// EmbeddedDocument is a chunk with its vector, ready for the store.
type EmbeddedDocument struct {
	ID        string    `db:"id" json:"id"`
	Chunk     Chunk     `json:"chunk"`
	Embedding []float32 `db:"embedding" json:"embedding"` // pgvector column
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RunState is the checkpoint tracker state.
type RunState string

const (
	StateNotStarted RunState = "not_started"
	StateRunning    RunState = "running"
	StatePaused     RunState = "paused"
	StateCompleted  RunState = "completed"
	StateFailed     RunState = "failed"
)

// FailedBatch records a batch that exhausted its retries.
type FailedBatch struct {
	Batch     int       `json:"batch"`
	FirstFile string    `json:"first_file"`
	LastFile  string    `json:"last_file"`
	Stage     string    `json:"stage"` // embed | store | load
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// ProgressCheckpoint is the durable record of how far an ingestion run got.
type ProgressCheckpoint struct {
	ProcessedFiles     int            `json:"processed_files"`
	TotalFiles         int            `json:"total_files"`
	GeneratedDocuments int            `json:"generated_documents"`
	CurrentBatch       int            `json:"current_batch"`
	TotalBatches       int            `json:"total_batches"`
	Timestamp          time.Time      `json:"timestamp"`
	RunID              string         `json:"run_id"`
	State              RunState       `json:"state"`
	FilesPerBatch      int            `json:"files_per_batch"`
	ManifestHash       string         `json:"manifest_hash"`
	FailedBatches      []FailedBatch  `json:"failed_batches,omitempty"`
	Rejected           map[string]int `json:"rejected,omitempty"`
	SkippedFiles       int            `json:"skipped_files"`
	LastError          string         `json:"last_error,omitempty"`
}

// RunSummary is reported at the end of a run and optionally uploaded.
type RunSummary struct {
	RunID              string         `json:"run_id"`
	State              RunState       `json:"state"`
	Resumed            bool           `json:"resumed"`
	TotalFiles         int            `json:"total_files"`
	ScannedFiles       int            `json:"scanned_files"`
	ProcessedFiles     int            `json:"processed_files"`
	GeneratedDocuments int            `json:"generated_documents"`
	FailedBatches      []FailedBatch  `json:"failed_batches,omitempty"`
	Rejected           map[string]int `json:"rejected,omitempty"`
	SkippedFiles       int            `json:"skipped_files"`
	Duplicates         int            `json:"duplicates"`
	DeletedRows        int64          `json:"deleted_rows"`
	StoredCount        int64          `json:"stored_count"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
}

// Scope selects the stored rows that a re-ingestion replaces.
type Scope struct {
	SourceType  string
	Domains     []string
	Collections []string
}
