package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/crawlvec/internal/app"
)

var precheckSample int

var precheckCmd = &cobra.Command{
	Use:   "precheck",
	Short: "Sample each collection through parse and filter without embedding",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if precheckSample > 0 {
			cfg.SampleCheckSize = precheckSample
		}
		ctx := cmd.Context()
		obj, err := app.NewObjectClient(ctx, cfg)
		if err != nil {
			return err
		}
		cols, err := app.OpenCollections(cfg, obj)
		if err != nil {
			return err
		}

		results, checkErr := app.Precheck(ctx, cfg, cols)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
		return checkErr
	},
}

func init() {
	precheckCmd.Flags().IntVar(&precheckSample, "sample", 0, "Files sampled per collection (defaults to SAMPLE_CHECK_SIZE)")
	rootCmd.AddCommand(precheckCmd)
}
