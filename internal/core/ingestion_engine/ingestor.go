package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/crawlvec/internal/models"
)

// Ingestor runs the corpus to vector store pipeline.
type Ingestor interface {
	Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error)
	Status() models.ProgressCheckpoint
}

var _ Ingestor = (*Pipeline)(nil)
