// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/export"
	"github.com/pdiddy/trial-extractor/internal/store"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract <document>",
	Short: "Extract one publication into a trial record",
	Long: `Extract reads one publication (.pdf, .md or .txt), discovers its treatment
arms, and asks the LLM for every catalog field in chunks. The validated record
is written to --out (JSON or YAML by extension) or printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringP("out", "o", "", "record file to write (.json, .yaml); default stdout")
	extractCmd.Flags().Bool("store", false, "also upsert the record into the store")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
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

	doc, err := src.Document(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "extracting %s\n", doc.ID)

	rec, err := ex.Extract(ctx, doc)
	if err != nil {
		return err
	}
	printRecordSummary(rec)

	if useStore, _ := cmd.Flags().GetBool("store"); useStore {
		s, err := store.Open(cfg.Store)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Upsert(ctx, rec); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "stored %s in %s\n", rec.NCTNumber, s.Path())
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		data, err := export.Marshal(rec, export.FormatJSON)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := export.WriteFile(out, rec); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", out)
	return nil
}

// printRecordSummary reports the outcome of one extraction on stderr.
func printRecordSummary(rec *types.PublicationRecord) {
	m := rec.Metadata
	fmt.Fprintf(os.Stderr, "extracted %s: %s, %d/%d arms, %d calls, $%.4f\n",
		rec.DocumentID, rec.NCTNumber, m.ArmsProcessed, m.ArmsDiscovered, m.TotalLLMCalls, m.TotalCost)
	for _, issue := range m.ChunkIssues {
		fmt.Fprintf(os.Stderr, "  chunk %d %s: %s %s\n", issue.Chunk, issue.ArmID, issue.Kind, issue.Message)
	}
	for _, e := range m.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
	for _, w := range m.Warnings {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", w)
	}
	fmt.Fprintf(os.Stderr, "status: %s\n", m.Status)
}
