// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdiddy/trial-extractor/internal/container"
)

// MarkerConverter converts PDFs by piping them through the marker container
// image, which writes Markdown with tables preserved. The container runs
// without network access.
type MarkerConverter struct {
	runtime container.Runtime
	image   string
}

// NewMarkerConverter creates a converter that uses the given container
// runtime to run image. It verifies that the image exists locally before
// returning.
func NewMarkerConverter(ctx context.Context, rt container.Runtime, image string) (*MarkerConverter, error) {
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("marker image not available in %s: %w", rt.Name(), err)
	}
	return &MarkerConverter{runtime: rt, image: image}, nil
}

// Markdown reports that marker output is Markdown.
func (m *MarkerConverter) Markdown() bool { return true }

// Convert reads the PDF at path, pipes it through the marker container, and
// returns the resulting Markdown text.
func (m *MarkerConverter) Convert(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	var out bytes.Buffer
	err = m.runtime.Run(ctx, container.RunSpec{
		Image:   m.image,
		Stdin:   f,
		Stdout:  &out,
		Offline: true,
	})
	if err != nil {
		return "", fmt.Errorf("converting %s with marker: %w", path, err)
	}

	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("marker produced empty output for %s", path)
	}
	return out.String(), nil
}
