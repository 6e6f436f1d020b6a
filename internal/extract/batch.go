// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/trial-extractor/internal/export"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// sourceExts are the document types a batch picks up.
var sourceExts = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// pause waits between documents. Tests replace it to avoid real sleeps.
var pause = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Source turns a file into document text.
type Source interface {
	Document(ctx context.Context, path string) (types.Document, error)
}

// Sink receives every record a batch extracts, e.g. a database.
type Sink interface {
	Upsert(ctx context.Context, rec *types.PublicationRecord) error
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	Failed    int
	// Cost is the estimated spend of the whole batch in USD.
	Cost float64
}

// Total returns the number of documents processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.Failed
}

// HasFailures reports whether any documents failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// ExtractAll extracts every document in cfg.InputDir and writes one record
// file per document to cfg.OutputDir. Documents whose record is newer than
// the source are skipped. Documents are processed one at a time with
// cfg.InterDocumentDelay between them; a failed document never stops the
// batch.
func ExtractAll(ctx context.Context, ex *Extractor, src Source, cfg types.ExtractionConfig, w io.Writer, sinks ...Sink) (BatchSummary, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return BatchSummary{}, fmt.Errorf("creating output directory: %w", err)
	}

	entries, err := os.ReadDir(cfg.InputDir)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("reading input directory %s: %w", cfg.InputDir, err)
	}

	format := cfg.OutputFormat
	if format == "" {
		format = export.FormatJSON
	}
	start := ex.Usage().Cost

	var summary BatchSummary
	processed := 0

	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !sourceExts[ext] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		docID := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		srcPath := filepath.Join(cfg.InputDir, entry.Name())
		outPath := filepath.Join(cfg.OutputDir, docID+"."+format)

		changed, err := hasChanged(srcPath, outPath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}
		if !changed {
			fmt.Fprintf(w, "skipped %s\n", docID)
			summary.Skipped++
			continue
		}

		if processed > 0 {
			if err := pause(ctx, cfg.InterDocumentDelay); err != nil {
				return summary, err
			}
		}
		processed++

		fmt.Fprintf(w, "extracting %s\n", docID)

		doc, err := src.Document(ctx, srcPath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}
		doc.ID = docID

		rec, err := ex.Extract(ctx, doc)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", docID, err)
			summary.Failed++
			continue
		}

		if err := export.WriteFile(outPath, rec); err != nil {
			fmt.Fprintf(w, "failed  %s: write error: %v\n", docID, err)
			summary.Failed++
			continue
		}
		for _, s := range sinks {
			if err := s.Upsert(ctx, rec); err != nil {
				fmt.Fprintf(w, "warning %s: store error: %v\n", docID, err)
			}
		}

		fmt.Fprintf(w, "extracted %s (%d arms, %s, $%.4f)\n",
			docID, len(rec.Arms), rec.Metadata.Status, rec.Metadata.TotalCost)
		summary.Extracted++
	}

	summary.Cost = ex.Usage().Cost - start
	return summary, nil
}

// hasChanged reports whether the source file is newer than the output file.
// Returns true if the output does not exist or the source is more recent.
func hasChanged(srcPath, outPath string) (bool, error) {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return false, fmt.Errorf("stat source %s: %w", srcPath, err)
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat output %s: %w", outPath, err)
	}

	return srcInfo.ModTime().After(outInfo.ModTime()), nil
}
