package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/crawlvec/internal/config"
	"github.com/markdave123-py/crawlvec/internal/core"
	"github.com/markdave123-py/crawlvec/internal/core/corpus"
	db "github.com/markdave123-py/crawlvec/internal/core/database"
	"github.com/markdave123-py/crawlvec/internal/core/ingestion_engine"
	"github.com/markdave123-py/crawlvec/internal/core/llm"
	objectclient "github.com/markdave123-py/crawlvec/internal/core/object-client"
	"github.com/markdave123-py/crawlvec/internal/models"
)

// Deps are the external clients an App runs against. Objects may be nil
// when no collection lives in S3 and no report is uploaded.
type Deps struct {
	DB       core.DbClient
	Objects  core.ObjectClient
	Embedder core.EmbeddingProvider
	Tokens   core.TokenCounter
}

type App struct {
	cfg         *config.Config
	deps        Deps
	Collections []ingestion_engine.Collection
	Pipeline    *ingestion_engine.Pipeline
	closers     []func() error
	log         *slog.Logger
}

// IngestOptions control one ingest invocation.
type IngestOptions struct {
	Fresh        bool
	StatusAddr   string
	Report       bool
	SkipPrecheck bool
}

// NewApp connects to Postgres, the embedding provider and, when
// credentials are set, S3.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var closers []func() error
	fail := func(err error) (*App, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	objClient, err := NewObjectClient(appCtx, cfg)
	if err != nil {
		return fail(err)
	}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, dbClient.Close)
	slog.Info("database initialized and ready")

	embedder, closeEmbedder, err := llm.NewProvider(appCtx, cfg)
	if err != nil {
		return fail(fmt.Errorf("couldn't initialize the embedder, %w", err))
	}
	closers = append(closers, closeEmbedder)
	slog.Info("embedder initialized and ready", "provider", cfg.EmbedProvider, "model", cfg.EmbedModel)

	a, err := New(cfg, Deps{
		DB:       dbClient,
		Objects:  objClient,
		Embedder: embedder,
		Tokens:   llm.NewTokenCounter(),
	})
	if err != nil {
		return fail(err)
	}
	a.closers = closers
	return a, nil
}

// NewObjectClient returns an S3 client, or nil without AWS credentials.
func NewObjectClient(ctx context.Context, cfg *config.Config) (core.ObjectClient, error) {
	if !cfg.HasAWSCredentials() {
		return nil, nil
	}
	c, err := objectclient.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("object client initialized and ready")
	return c, nil
}

// New wires the pipeline over already constructed clients.
func New(cfg *config.Config, deps Deps) (*App, error) {
	cols, err := OpenCollections(cfg, deps.Objects)
	if err != nil {
		return nil, err
	}
	tracker := ingestion_engine.NewTracker(cfg.CheckpointPath)
	pipeline := ingestion_engine.NewPipeline(cols, deps.DB, deps.Embedder, deps.Tokens, tracker, ingestion_engine.IngestConfigFrom(cfg))

	return &App{
		cfg:         cfg,
		deps:        deps,
		Collections: cols,
		Pipeline:    pipeline,
		log:         slog.Default().With("component", "app"),
	}, nil
}

// OpenCollections reads the collections file and resolves each location to
// a corpus source.
func OpenCollections(cfg *config.Config, obj core.ObjectClient) ([]ingestion_engine.Collection, error) {
	defs, err := config.LoadCollections(cfg.CollectionsFile)
	if err != nil {
		return nil, err
	}
	out := make([]ingestion_engine.Collection, 0, len(defs))
	for _, d := range defs {
		if d.IsRemote() && obj == nil {
			return nil, fmt.Errorf("collection %s is in S3 but AWS credentials are not set", d.Name)
		}
		src, err := corpus.Open(d.Location, d.Prefix, obj)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", d.Name, err)
		}
		out = append(out, ingestion_engine.Collection{Name: d.Name, Priority: d.Priority, Source: src})
	}
	return out, nil
}

// Precheck samples every collection and fails when none reaches
// MIN_PASS_RATE.
func Precheck(ctx context.Context, cfg *config.Config, cols []ingestion_engine.Collection) ([]ingestion_engine.PrecheckResult, error) {
	filter := ingestion_engine.NewQualityFilter(ingestion_engine.IngestConfigFrom(cfg).Filter)

	results := make([]ingestion_engine.PrecheckResult, 0, len(cols))
	for _, col := range cols {
		res, err := ingestion_engine.Precheck(ctx, col, filter, cfg.SampleCheckSize)
		if err != nil {
			return results, err
		}
		slog.Info("precheck",
			"collection", res.Collection,
			"files", res.TotalFiles,
			"sampled", res.Sampled,
			"passed", res.Passed,
			"pass_rate", fmt.Sprintf("%.1f%%", res.PassRate),
			"rejected", res.Rejected,
		)
		results = append(results, res)
	}
	return results, ingestion_engine.CheckPassRates(results, cfg.MinPassRate)
}

// Ingest runs the pipeline and, when StatusAddr is set, the status server
// next to it. POST /api/pause stops the run the same way a signal does.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) (*models.RunSummary, error) {
	if !opts.SkipPrecheck && a.cfg.SampleCheckSize > 0 {
		if _, err := Precheck(ctx, a.cfg, a.Collections); err != nil {
			return nil, fmt.Errorf("precheck: %w", err)
		}
	}

	runCtx, pause := context.WithCancel(ctx)
	defer pause()

	g, gctx := errgroup.WithContext(runCtx)

	var srv *Server
	if opts.StatusAddr != "" {
		srv = NewServer(opts.StatusAddr, a.cfg.JWTSecret, a.Pipeline, pause)
		g.Go(srv.Start)
	}

	var summary *models.RunSummary
	g.Go(func() error {
		if srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
		var err error
		summary, err = a.Pipeline.Run(gctx, ingestion_engine.RunOptions{Fresh: opts.Fresh})
		return err
	})

	err := g.Wait()
	if summary != nil && opts.Report {
		if url, rerr := a.UploadReport(context.WithoutCancel(ctx), summary); rerr != nil {
			a.log.Warn("run report not uploaded", "error", rerr)
		} else {
			a.log.Info("run report uploaded", "url", url)
		}
	}
	return summary, err
}

// UploadReport stores the summary as REPORT_BUCKET/reports/<run_id>.json.
func (a *App) UploadReport(ctx context.Context, summary *models.RunSummary) (string, error) {
	if a.deps.Objects == nil {
		return "", errors.New("no object storage configured")
	}
	if a.cfg.ReportBucket == "" {
		return "", errors.New("REPORT_BUCKET not set")
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	key := fmt.Sprintf("reports/%s.json", summary.RunID)
	return a.deps.Objects.UploadFile(ctx, a.cfg.ReportBucket, key, data, "application/json")
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}
