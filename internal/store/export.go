// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/export"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// Records returns every stored record, ordered by NCT number.
func (s *Store) Records(ctx context.Context) ([]*types.PublicationRecord, error) {
	var ncts []string
	if err := s.db.SelectContext(ctx, &ncts, `SELECT nct_number FROM publications ORDER BY nct_number`); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	recs := make([]*types.PublicationRecord, 0, len(ncts))
	for _, nct := range ncts {
		rec, err := s.Get(ctx, nct)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ExportYAML writes every stored record to path as one YAML list.
func (s *Store) ExportYAML(ctx context.Context, path string) error {
	recs, err := s.Records(ctx)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes every stored record to path as one JSON array.
func (s *Store) ExportJSON(ctx context.Context, path string) error {
	recs, err := s.Records(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ExportCSV writes every stored record as wide CSV, one row per arm.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, cat *catalog.Catalog) error {
	recs, err := s.Records(ctx)
	if err != nil {
		return err
	}
	return export.WriteCSV(w, cat, recs)
}
