package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/crawlvec/internal/app"
	"github.com/markdave123-py/crawlvec/internal/core/ingestion_engine"
)

var (
	ingestFresh        bool
	ingestStatusAddr   string
	ingestReport       bool
	ingestSkipPrecheck bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run (or resume) the ingestion pipeline",
	Long: `Scan every configured collection, keep one page per URL, embed the chunks and store them.
An interrupted run resumes from its checkpoint unless --fresh is given.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFresh, "fresh", false, "Ignore the checkpoint and re-ingest everything")
	ingestCmd.Flags().StringVar(&ingestStatusAddr, "status-addr", "", "Serve progress on this address (defaults to STATUS_ADDR)")
	ingestCmd.Flags().BoolVar(&ingestReport, "report", false, "Upload the run summary to REPORT_BUCKET")
	ingestCmd.Flags().BoolVar(&ingestSkipPrecheck, "skip-precheck", false, "Do not sample collection quality before ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	addr := ingestStatusAddr
	if addr == "" {
		addr = cfg.StatusAddr
	}

	ctx := cmd.Context()
	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer a.Close()

	summary, err := a.Ingest(ctx, app.IngestOptions{
		Fresh:        ingestFresh,
		StatusAddr:   addr,
		Report:       ingestReport,
		SkipPrecheck: ingestSkipPrecheck,
	})
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	}
	if errors.Is(err, ingestion_engine.ErrInterrupted) {
		slog.Warn("ingestion paused, run ingest again to resume", "checkpoint", cfg.CheckpointPath)
		return nil
	}
	return err
}
