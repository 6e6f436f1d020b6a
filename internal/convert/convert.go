// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns source documents (PDF, Markdown, plain text) into
// the text the extraction pipeline reads. PDFs go through a pluggable
// backend: native pdfcpu parsing or the marker container.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trial-extractor/internal/container"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// ErrUnsupported is returned for file types no backend can read.
var ErrUnsupported = errors.New("unsupported document type")

// Converter transforms a PDF file into text. The pdfcpu backend returns
// plain text; the marker backend returns Markdown.
type Converter interface {
	// Convert reads the PDF at path and returns its content.
	Convert(ctx context.Context, path string) (string, error)
}

// markdownOutput is implemented by converters whose output is Markdown and
// should be flattened before extraction.
type markdownOutput interface {
	Markdown() bool
}

// Source reads documents from disk and implements extract.Source.
type Source struct {
	pdf Converter
}

// NewSource returns a Source that reads PDFs with pdf. A nil converter
// rejects PDF input with ErrUnsupported.
func NewSource(pdf Converter) *Source {
	return &Source{pdf: pdf}
}

// New builds a Source for the configured backend. The marker backend needs
// a working docker or podman runtime and the marker image.
func New(ctx context.Context, cfg types.ConversionConfig) (*Source, error) {
	cfg.Defaults()
	switch cfg.Backend {
	case types.BackendPDFCPU:
		return NewSource(NewPDFConverter()), nil
	case types.BackendMarker:
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, err
		}
		mc, err := NewMarkerConverter(ctx, rt, cfg.MarkerImage)
		if err != nil {
			return nil, err
		}
		return NewSource(mc), nil
	case types.BackendText:
		return NewSource(nil), nil
	}
	return nil, fmt.Errorf("unknown conversion backend %q", cfg.Backend)
}

// PDF returns the converter used for PDF input, or nil.
func (s *Source) PDF() Converter { return s.pdf }

// Document reads the file at path. The document ID is the file's base name
// unless Markdown frontmatter names one.
func (s *Source) Document(ctx context.Context, path string) (types.Document, error) {
	doc := types.Document{
		ID:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, fmt.Errorf("reading %s: %w", path, err)
		}
		fm, body := splitFrontmatter(data)
		if fm.DocumentID != "" {
			doc.ID = fm.DocumentID
		}
		doc.Text, doc.Tables = FlattenMarkdown(body)

	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, fmt.Errorf("reading %s: %w", path, err)
		}
		doc.Text = string(data)

	case ".pdf":
		if s.pdf == nil {
			return doc, fmt.Errorf("%w: %s (no PDF backend configured)", ErrUnsupported, path)
		}
		out, err := s.pdf.Convert(ctx, path)
		if err != nil {
			return doc, err
		}
		if m, ok := s.pdf.(markdownOutput); ok && m.Markdown() {
			doc.Text, doc.Tables = FlattenMarkdown([]byte(out))
		} else {
			doc.Text = out
		}

	default:
		return doc, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}

	doc.Text = strings.ToValidUTF8(doc.Text, "")
	doc.Tables = strings.ToValidUTF8(doc.Tables, "")
	return doc, nil
}

// frontmatter is the YAML header ConvertAll writes ahead of converted text.
type frontmatter struct {
	DocumentID  string `yaml:"document_id"`
	Source      string `yaml:"source"`
	Backend     string `yaml:"backend,omitempty"`
	ConvertedAt string `yaml:"converted_at"`
}

var fmDelim = []byte("---\n")

// splitFrontmatter separates a leading YAML frontmatter block from the body.
// Malformed frontmatter is left in the body.
func splitFrontmatter(data []byte) (frontmatter, []byte) {
	var fm frontmatter
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, fmDelim) {
		return fm, data
	}
	rest := data[len(fmDelim):]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		return fm, data
	}
	if err := yaml.Unmarshal(rest[:end+1], &fm); err != nil {
		return frontmatter{}, data
	}
	return fm, rest[end+len("\n---\n"):]
}
