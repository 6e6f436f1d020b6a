// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes publication records as JSON, YAML and wide CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// Record file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for formats other than json and yaml.
var ErrUnknownFormat = errors.New("unknown export format")

// FormatOf returns the record format implied by a file name.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Marshal encodes rec in the given format.
func Marshal(rec *types.PublicationRecord, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling record: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshaling record: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Unmarshal decodes a record in the given format.
func Unmarshal(data []byte, format string) (*types.PublicationRecord, error) {
	var rec types.PublicationRecord
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &rec)
	case FormatYAML:
		err = yaml.Unmarshal(data, &rec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

// WriteFile writes rec to path in the format named by the extension.
func WriteFile(path string, rec *types.PublicationRecord) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Marshal(rec, format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile reads a record written by WriteFile.
func ReadFile(path string) (*types.PublicationRecord, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", path, err)
	}
	return Unmarshal(data, format)
}

// Columns returns the CSV header: document and arm identifiers, then the
// shared fields, then the arm fields, each in catalog order.
func Columns(cat *catalog.Catalog) []string {
	cols := []string{"document_id", "arm_id"}
	for _, scope := range []types.Scope{types.ScopeShared, types.ScopeArmSpecific} {
		for _, d := range cat.FieldsIn(scope) {
			cols = append(cols, string(d.Name))
		}
	}
	return cols
}

// WriteCSV writes one row per arm of every record. Shared values repeat on
// each of a record's rows; the arm's own value wins where both exist.
func WriteCSV(w io.Writer, cat *catalog.Catalog, recs []*types.PublicationRecord) error {
	cw := csv.NewWriter(w)
	cols := Columns(cat)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, rec := range recs {
		for _, arm := range rec.Arms {
			row := make([]string, len(cols))
			row[0] = rec.DocumentID
			row[1] = arm.ArmID
			for i, c := range cols[2:] {
				f := types.Field(c)
				v, ok := arm.Values[f]
				if !ok {
					v = rec.Shared[f]
				}
				row[i+2] = v
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing %s/%s: %w", rec.DocumentID, arm.ArmID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
