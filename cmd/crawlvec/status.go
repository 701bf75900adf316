package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/crawlvec/internal/core/ingestion_engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the checkpoint of the last run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cp, found, err := ingestion_engine.NewTracker(cfg.CheckpointPath).Load()
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintf(cmd.OutOrStdout(), "no checkpoint at %s\n", cfg.CheckpointPath)
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the checkpoint and manifest so the next run starts fresh",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := ingestion_engine.NewTracker(cfg.CheckpointPath).Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cfg.CheckpointPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, resetCmd)
}
