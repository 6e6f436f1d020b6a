// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/extract"
	"github.com/pdiddy/trial-extractor/internal/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract every publication in the input directory",
	Long: `Batch extracts every .pdf, .md and .txt file in the input directory, one at a
time, and writes one record file per document to the output directory.
Documents whose record is newer than the source are skipped. A failed
document is reported and the batch moves on.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().String("input", "", "directory of source documents (default input)")
	batchCmd.Flags().String("output", "", "directory for record files (default output/records)")
	batchCmd.Flags().String("format", "", "record file format: json or yaml")
	batchCmd.Flags().Duration("delay", 0, "pause between documents (default 2s)")
	batchCmd.Flags().Bool("store", false, "also upsert every record into the store")

	for key, flag := range map[string]string{
		"extraction.input_dir":            "input",
		"extraction.output_dir":           "output",
		"extraction.output_format":        "format",
		"extraction.inter_document_delay": "delay",
	} {
		if err := viper.BindPFlag(key, batchCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()
	cat := catalog.Default()

	ex, err := newExtractor(cfg, cat)
	if err != nil {
		return err
	}
	src, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}

	var sinks []extract.Sink
	if useStore, _ := cmd.Flags().GetBool("store"); useStore {
		s, err := store.Open(cfg.Store)
		if err != nil {
			return err
		}
		defer s.Close()
		sinks = append(sinks, s)
	}

	summary, err := extract.ExtractAll(ctx, ex, src, cfg.Extraction, os.Stdout, sinks...)
	if err != nil {
		return err
	}

	usage := ex.Usage()
	fmt.Printf("\nBatch summary: %d total, %d extracted, %d skipped, %d failed\n",
		summary.Total(), summary.Extracted, summary.Skipped, summary.Failed)
	fmt.Printf("LLM usage: %d calls, %d prompt + %d completion tokens, $%.4f\n",
		usage.Calls, usage.PromptTokens, usage.CompletionTokens, summary.Cost)

	if summary.HasFailures() {
		return fmt.Errorf("%d document(s) failed", summary.Failed)
	}
	return nil
}
