// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trial-extractor/internal/convert"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [pdfs...]",
	Short: "Convert PDF publications to Markdown",
	Long: `Convert turns PDF publications into Markdown with YAML frontmatter so the
text can be reviewed or corrected before extraction. Supports the native
pdfcpu backend and the container-based marker backend.

With no arguments every PDF in the input directory is converted. PDFs whose
Markdown is already up to date are skipped.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("input", "input", "directory of PDFs to convert when no files are given")
	convertCmd.Flags().String("output", "output/markdown", "directory for converted Markdown")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()
	if cfg.Conversion.Backend == types.BackendText {
		return fmt.Errorf("the text backend reads Markdown and text only; choose pdfcpu or marker")
	}

	src, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	backend := string(cfg.Conversion.Backend)
	outDir, _ := cmd.Flags().GetString("output")

	if len(args) == 0 {
		inputDir, _ := cmd.Flags().GetString("input")
		result, err := convert.ConvertAll(ctx, src.PDF(), backend, inputDir, outDir, os.Stdout)
		if err != nil {
			return err
		}
		if result.HasFailures() {
			return fmt.Errorf("%d PDF(s) failed to convert", result.Failed)
		}
		return nil
	}

	failed := 0
	for _, path := range args {
		if convert.ConvertDocument(ctx, src.PDF(), backend, path, outDir, os.Stdout) == convert.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d PDF(s) failed to convert", failed)
	}
	return nil
}
