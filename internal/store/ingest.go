// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/trial-extractor/internal/export"
)

// IngestSummary holds counts from a store ingest run.
type IngestSummary struct {
	Ingested int
	Skipped  int
	Failed   int
}

// Total returns the number of record files processed.
func (s IngestSummary) Total() int {
	return s.Ingested + s.Skipped + s.Failed
}

// Ingest loads every record file (.json, .yaml, .yml) in dir into the store.
// Files unchanged since they were last ingested are skipped.
func (s *Store) Ingest(ctx context.Context, dir string, w io.Writer) (IngestSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading record directory %s: %w", dir, err)
	}

	var summary IngestSummary
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := export.FormatOf(entry.Name()); err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", entry.Name(), err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var stored string
		err = s.db.GetContext(ctx, &stored, `SELECT file_mod_time FROM ingest_status WHERE path = ?`, path)
		if err == nil && stored == modTime {
			fmt.Fprintf(w, "skipped %s\n", entry.Name())
			summary.Skipped++
			continue
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return summary, fmt.Errorf("checking ingest status: %w", err)
		}

		rec, err := export.ReadFile(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", entry.Name(), err)
			summary.Failed++
			continue
		}
		if err := s.Upsert(ctx, rec); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", entry.Name(), err)
			summary.Failed++
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO ingest_status (path, file_mod_time) VALUES (?, ?)
			 ON CONFLICT(path) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
			path, modTime); err != nil {
			return summary, fmt.Errorf("updating ingest status: %w", err)
		}

		fmt.Fprintf(w, "ingested %s (%s, %d arms)\n", entry.Name(), rec.NCTNumber, len(rec.Arms))
		summary.Ingested++
	}

	fmt.Fprintf(w, "\ningested: %d, skipped: %d, failed: %d\n",
		summary.Ingested, summary.Skipped, summary.Failed)
	return summary, nil
}
