package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/crawlvec/internal/core"
	"github.com/markdave123-py/crawlvec/internal/models"
)

// ErrInterrupted is returned when the run stopped on cancellation. The
// checkpoint is left paused.
var ErrInterrupted = errors.New("ingestion interrupted")

type RunOptions struct {
	// Fresh ignores any checkpoint and re-ingests the whole corpus.
	Fresh bool
}

// Pipeline orchestrates scan, dedup, chunk, embed and store over file batches.
type Pipeline struct {
	collections []Collection
	sources     map[string]Collection
	db          core.DbClient
	filter      *QualityFilter
	chunker     Chunker
	tokens      core.TokenCounter
	embedder    *BatchEmbedder
	writer      *StorageWriter
	tracker     *Tracker
	cfg         IngestConfig

	newRunID func() string
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger
}

// NewPipeline wires the stages. tokens may be nil to skip token statistics.
func NewPipeline(
	collections []Collection,
	db core.DbClient,
	emb core.EmbeddingProvider,
	tokens core.TokenCounter,
	tracker *Tracker,
	cfg IngestConfig,
) *Pipeline {
	sources := make(map[string]Collection, len(collections))
	for _, c := range collections {
		sources[c.Name] = c
	}
	return &Pipeline{
		collections: collections,
		sources:     sources,
		db:          db,
		filter:      NewQualityFilter(cfg.Filter),
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkLength),
		tokens:      tokens,
		embedder:    NewBatchEmbedder(emb, cfg.Retry, cfg.EmbedBatchSize, cfg.EmbedDim, cfg.EmbedDelay),
		writer:      NewStorageWriter(db, cfg.Retry),
		tracker:     tracker,
		cfg:         cfg,
		newRunID:    uuid.NewString,
		now:         time.Now,
		sleep:       sleepCtx,
		log:         slog.Default().With("component", "pipeline"),
	}
}

// Status returns the live checkpoint.
func (p *Pipeline) Status() models.ProgressCheckpoint { return p.tracker.Snapshot() }

// Run ingests the corpus, resuming from the checkpoint when it matches the
// stored manifest. Cancelling ctx lets the current batch finish, pauses the
// checkpoint and returns ErrInterrupted.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	pc := NewPipelineContext()
	summary := &models.RunSummary{StartedAt: p.now().UTC()}

	manifest, err := p.prepare(ctx, pc, opts)
	if err != nil {
		return nil, err
	}

	cp := p.tracker.Snapshot()
	summary.RunID = cp.RunID
	summary.Resumed = pc.Resumed
	summary.TotalFiles = cp.TotalFiles
	summary.ScannedFiles = pc.ScannedFiles
	summary.Duplicates = pc.Dedup.Duplicates
	summary.DeletedRows = pc.DeletedRows

	// Batch I/O runs on a context that outlives cancellation so the batch in
	// flight is not torn down; ctx is checked between batches.
	work := context.WithoutCancel(ctx)

	total := manifest.TotalBatches()
	for batch := cp.CurrentBatch; batch < total; batch++ {
		if ctx.Err() != nil {
			return p.interrupt(summary, pc)
		}
		if err := p.runBatch(work, pc, manifest, batch); err != nil {
			_ = p.tracker.Fail(err)
			return nil, err
		}
		if batch+1 < total && p.cfg.BatchDelay > 0 {
			if err := p.sleep(ctx, p.cfg.BatchDelay); err != nil {
				return p.interrupt(summary, pc)
			}
		}
	}

	if err := p.tracker.Complete(); err != nil {
		return nil, err
	}
	p.finish(work, summary, pc)
	p.log.Info("ingestion completed",
		"run_id", summary.RunID,
		"processed_files", summary.ProcessedFiles,
		"documents", summary.GeneratedDocuments,
		"failed_batches", len(summary.FailedBatches),
		"rejected", summary.Rejected,
		"skipped", summary.SkippedFiles,
	)
	return summary, nil
}

// prepare loads a resumable checkpoint or scans the corpus for a fresh run.
func (p *Pipeline) prepare(ctx context.Context, pc *PipelineContext, opts RunOptions) (*Manifest, error) {
	manifestPath := ManifestPath(p.tracker.Path())

	if !opts.Fresh {
		if m, ok := p.loadResumable(manifestPath); ok {
			if err := p.tracker.Resume(); err != nil {
				return nil, err
			}
			cp := p.tracker.Snapshot()
			pc.Resumed = true
			pc.RunID = cp.RunID
			p.log.Info("resuming ingestion",
				"run_id", cp.RunID,
				"batch", cp.CurrentBatch,
				"total_batches", cp.TotalBatches,
				"processed_files", cp.ProcessedFiles,
			)
			return m, nil
		}
	}

	if err := p.scan(ctx, pc); err != nil {
		if ctx.Err() != nil {
			p.log.Info("ingestion interrupted while scanning", "scanned_files", pc.ScannedFiles)
			return nil, fmt.Errorf("%w before the first batch", ErrInterrupted)
		}
		return nil, err
	}

	// the old checkpoint must not survive the delete below, or a later run
	// could resume into rows that no longer exist
	if err := p.tracker.Reset(); err != nil {
		return nil, fmt.Errorf("invalidate previous checkpoint: %w", err)
	}

	m := NewManifest(pc.Dedup.Entries(), p.cfg.FilesPerBatch)
	if err := m.Save(manifestPath); err != nil {
		return nil, err
	}
	pc.RunID = p.newRunID()

	names := make([]string, 0, len(p.collections))
	for _, c := range p.collections {
		names = append(names, c.Name)
	}
	deleted, err := p.writer.ReplaceScope(ctx, models.Scope{
		SourceType:  models.SourceTypeWebsite,
		Domains:     pc.Dedup.Domains(),
		Collections: names,
	})
	if err != nil {
		return nil, fmt.Errorf("delete previous rows: %w", err)
	}
	pc.DeletedRows = deleted
	p.log.Info("previous rows removed", "deleted", deleted)

	if err := p.tracker.Begin(RunStart{
		RunID:         pc.RunID,
		TotalFiles:    len(m.Entries),
		TotalBatches:  m.TotalBatches(),
		FilesPerBatch: m.FilesPerBatch,
		ManifestHash:  m.Hash(),
		Rejected:      pc.Rejected.AsMap(),
		SkippedFiles:  pc.SkippedFiles,
	}); err != nil {
		return nil, err
	}
	p.log.Info("starting ingestion",
		"run_id", pc.RunID,
		"canonical_files", len(m.Entries),
		"batches", m.TotalBatches(),
		"duplicates", pc.Dedup.Duplicates,
	)
	return m, nil
}

func (p *Pipeline) loadResumable(manifestPath string) (*Manifest, bool) {
	cp, found, err := p.tracker.Load()
	if err != nil {
		p.log.Warn("checkpoint unreadable, starting fresh", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	m, err := LoadManifest(manifestPath)
	if err != nil {
		p.log.Warn("manifest unreadable, starting fresh", "error", err)
		return nil, false
	}
	if m == nil {
		return nil, false
	}
	if !p.tracker.Resumable(m.Hash(), p.cfg.FilesPerBatch) {
		p.log.Info("checkpoint not resumable, starting fresh", "state", cp.State, "batch", cp.CurrentBatch, "total_batches", cp.TotalBatches)
		return nil, false
	}
	return m, true
}

// scan reads every collection in priority order through parse, filter and
// dedup.
func (p *Pipeline) scan(ctx context.Context, pc *PipelineContext) error {
	for _, col := range p.collections {
		names, err := col.Source.List(ctx)
		if err != nil {
			return fmt.Errorf("collection %s: %w", col.Name, err)
		}
		p.log.Info("scanning collection", "collection", col.Name, "location", col.Source.Location(), "files", len(names))

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := p.readRecord(ctx, col, name)
			if err != nil {
				var pe *ParseError
				pc.skip(errors.As(err, &pe))
				p.log.Debug("file skipped", "collection", col.Name, "file", name, "error", err)
				continue
			}
			pc.ScannedFiles++

			res := p.filter.Filter(ctx, rec.RawBody)
			if !res.Accepted() {
				pc.Rejected.Add(res.Reason)
				p.log.Debug("file rejected", "collection", col.Name, "file", name, "reason", res.Reason)
				continue
			}
			pc.Dedup.Offer(rec, col.Priority, res.Text)
		}
	}
	return nil
}

func (p *Pipeline) readRecord(ctx context.Context, col Collection, name string) (*models.RawCrawlRecord, error) {
	rc, err := col.Source.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return ReadRecord(rc, col.Name, name)
}

// runBatch processes one file batch. Provider or storage failures that
// exhaust their retries are recorded and the batch still advances; only a
// checkpoint write error is returned.
func (p *Pipeline) runBatch(ctx context.Context, pc *PipelineContext, m *Manifest, batch int) error {
	entries := m.Batch(batch)
	log := p.log.With("batch", batch, "files", len(entries))

	var chunks []models.Chunk
	skipped := 0
	for _, e := range entries {
		body, ok := p.body(ctx, pc, e)
		if !ok {
			skipped++
			continue
		}
		texts := p.chunker.Split(body)
		chunks = append(chunks, BuildChunks(e, texts, p.tokens, pc.RunID, batch)...)
	}
	pc.Chunks += len(chunks)

	docs, err := p.embedder.EmbedChunks(ctx, chunks)
	if err == nil {
		err = p.writer.Write(ctx, pc.RunID, batch, docs)
	}

	stored := len(docs)
	if err != nil {
		stored = 0
		fb := failedBatch(entries, batch, err)
		pc.FailedBatches = append(pc.FailedBatches, fb)
		p.tracker.RecordFailure(fb)
		log.Error("batch failed, continuing", "stage", fb.Stage, "error", err)
	}
	pc.Documents += stored

	if err := p.tracker.Advance(batch, len(entries), stored, skipped); err != nil {
		return err
	}
	cp := p.tracker.Snapshot()
	log.Info("batch done",
		"chunks", len(chunks),
		"stored", stored,
		"processed_files", cp.ProcessedFiles,
		"total_files", cp.TotalFiles,
	)
	return nil
}

// body returns the cleaned text for e, re-reading the file on resume.
func (p *Pipeline) body(ctx context.Context, pc *PipelineContext, e models.CanonicalEntry) (string, bool) {
	if e.Body != "" {
		return e.Body, true
	}
	col, ok := p.sources[e.SourceCollection]
	if !ok {
		p.log.Warn("collection no longer configured", "collection", e.SourceCollection, "file", e.SourceFile)
		pc.skip(false)
		return "", false
	}
	rec, err := p.readRecord(ctx, col, e.SourceFile)
	if err != nil {
		var pe *ParseError
		pc.skip(errors.As(err, &pe))
		p.log.Warn("file unreadable on resume", "collection", col.Name, "file", e.SourceFile, "error", err)
		return "", false
	}
	res := p.filter.Filter(ctx, rec.RawBody)
	if !res.Accepted() {
		pc.Rejected.Add(res.Reason)
		return "", false
	}
	return res.Text, true
}

func failedBatch(entries []models.CanonicalEntry, batch int, err error) models.FailedBatch {
	fb := models.FailedBatch{Batch: batch, Stage: "embed", Error: err.Error()}
	var be *BatchError
	if errors.As(err, &be) {
		fb.Stage = be.Stage
	}
	if len(entries) > 0 {
		fb.FirstFile = entries[0].SourceFile
		fb.LastFile = entries[len(entries)-1].SourceFile
	}
	return fb
}

func (p *Pipeline) interrupt(summary *models.RunSummary, pc *PipelineContext) (*models.RunSummary, error) {
	if err := p.tracker.Pause(); err != nil {
		return nil, err
	}
	p.finish(context.Background(), summary, pc)
	p.log.Warn("ingestion paused", "run_id", summary.RunID, "processed_files", summary.ProcessedFiles)
	return summary, ErrInterrupted
}

func (p *Pipeline) finish(ctx context.Context, summary *models.RunSummary, pc *PipelineContext) {
	cp := p.tracker.Snapshot()
	summary.State = cp.State
	summary.ProcessedFiles = cp.ProcessedFiles
	summary.GeneratedDocuments = cp.GeneratedDocuments
	summary.FailedBatches = cp.FailedBatches
	summary.Rejected = cp.Rejected
	if n := pc.Rejected.Total(); n > 0 && pc.Resumed {
		merged := make(map[string]int, len(cp.Rejected))
		for k, v := range cp.Rejected {
			merged[k] = v
		}
		for k, v := range pc.Rejected {
			merged[string(k)] += v
		}
		summary.Rejected = merged
	}
	summary.SkippedFiles = cp.SkippedFiles
	summary.FinishedAt = p.now().UTC()

	countCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := p.db.CountDocuments(countCtx, models.SourceTypeWebsite)
	if err != nil {
		p.log.Warn("count stored documents failed", "error", err)
		return
	}
	summary.StoredCount = n
}
