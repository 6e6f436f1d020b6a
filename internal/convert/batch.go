// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// now is the clock used for frontmatter timestamps.
var now = time.Now

// Status is the outcome of converting one document.
type Status string

const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the total number of documents processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any documents failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ConvertDocument converts one PDF and writes <outDir>/<id>.md with YAML
// frontmatter naming the document and its source. Existing Markdown that
// is newer than the PDF is left alone.
func ConvertDocument(ctx context.Context, c Converter, backend, pdfPath, outDir string, w io.Writer) Status {
	id := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	mdPath := filepath.Join(outDir, id+".md")

	if fresh(pdfPath, mdPath) {
		fmt.Fprintf(w, "skipped %s (up to date)\n", id)
		return StatusSkipped
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", id, err)
		return StatusFailed
	}

	body, err := c.Convert(ctx, pdfPath)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", id, err)
		return StatusFailed
	}

	content, err := addFrontmatter(frontmatter{
		DocumentID:  id,
		Source:      pdfPath,
		Backend:     backend,
		ConvertedAt: now().UTC().Format(time.RFC3339),
	}, body)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", id, err)
		return StatusFailed
	}

	if err := os.WriteFile(mdPath, content, 0o644); err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", id, err)
		return StatusFailed
	}

	fmt.Fprintf(w, "converted %s\n", id)
	return StatusConverted
}

// ConvertAll converts every PDF in inputDir into Markdown under outDir,
// printing per-file status to w and returning a summary.
func ConvertAll(ctx context.Context, c Converter, backend, inputDir, outDir string, w io.Writer) (BatchResult, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return BatchResult{}, fmt.Errorf("reading input directory %s: %w", inputDir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(inputDir, e.Name()))
		}
	}
	sort.Strings(paths)

	var result BatchResult
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch ConvertDocument(ctx, c, backend, p, outDir, w) {
		case StatusConverted:
			result.Converted++
		case StatusSkipped:
			result.Skipped++
		case StatusFailed:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result, nil
}

// fresh reports whether out exists and is at least as new as src.
func fresh(src, out string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	oi, err := os.Stat(out)
	if err != nil {
		return false
	}
	return !si.ModTime().After(oi.ModTime())
}

// addFrontmatter prepends YAML frontmatter to the converted content.
func addFrontmatter(fm frontmatter, body string) ([]byte, error) {
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	var b bytes.Buffer
	b.Write(fmDelim)
	b.Write(head)
	b.Write(fmDelim)
	b.WriteByte('\n')
	b.WriteString(body)
	return b.Bytes(), nil
}
