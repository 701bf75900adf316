package ingestion_engine

import (
	"github.com/markdave123-py/crawlvec/internal/models"
)

// PipelineContext carries the mutable state of one run through every stage.
type PipelineContext struct {
	RunID   string
	Resumed bool

	Dedup    *Deduplicator
	Rejected RejectionTally

	ScannedFiles  int
	DeletedRows   int64
	ParseFailures int
	SkippedFiles  int

	Chunks        int
	Documents     int
	FailedBatches []models.FailedBatch
}

func NewPipelineContext() *PipelineContext {
	return &PipelineContext{
		Dedup:    NewDeduplicator(),
		Rejected: make(RejectionTally),
	}
}

// skip counts a file that could not be read or parsed.
func (pc *PipelineContext) skip(parseFailure bool) {
	pc.SkippedFiles++
	if parseFailure {
		pc.ParseFailures++
	}
}
