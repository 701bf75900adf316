// Command crawlvec loads a crawled website corpus into a pgvector store.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/crawlvec/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "crawlvec",
	Short: "Crawl corpus to vector store ingestion",
	Long: "crawlvec parses crawled pages, filters and deduplicates them, chunks and embeds the text " +
		"and stores the vectors in PostgreSQL with pgvector. Runs are checkpointed and resume after interruption.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cfg = config.LoadConfig()
		slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr))
	},
}

// cfg is loaded before any subcommand runs.
var cfg *config.Config

func main() {
	ctx, stop := signalContext(context.Background())
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// signalContext cancels on the first SIGINT/SIGTERM so the run can pause
// after its current batch. A second signal exits immediately.
func signalContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
			slog.Warn("interrupt received, finishing the current batch (signal again to exit now)")
			cancel()
		case <-done:
			return
		}
		select {
		case <-ch:
			slog.Error("second interrupt, exiting without saving")
			os.Exit(130)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel()
	}
}
