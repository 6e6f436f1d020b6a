// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trial-extractor/internal/secrets"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	initConfig()
	t.Setenv("CTGOV_USER_AGENT", "")
	loadedSecrets = secrets.Set{secrets.OpenAIAPIKey: "sk-file"}
	t.Cleanup(func() { loadedSecrets = nil })

	cfg := loadConfig()
	assert.Equal(t, types.ProviderOpenAI, cfg.Extraction.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Extraction.Model)
	assert.Equal(t, "sk-file", cfg.Extraction.APIKey)
	assert.Equal(t, "input", cfg.Extraction.InputDir)
	assert.Equal(t, "output/records", cfg.Extraction.OutputDir)
	assert.Equal(t, 2*time.Second, cfg.Extraction.InterDocumentDelay)
	assert.Equal(t, types.BackendPDFCPU, cfg.Conversion.Backend)
	assert.Equal(t, "output/trials.db", cfg.Store.Path)
	assert.False(t, cfg.Registry.Enabled)
	assert.Equal(t, "trial-extractor/0.1", cfg.Registry.UserAgent)
}

func TestLoadConfigEnvironment(t *testing.T) {
	initConfig()
	t.Setenv("TRIAL_EXTRACTOR_EXTRACTION_PROVIDER", "anthropic")
	t.Setenv("TRIAL_EXTRACTOR_EXTRACTION_MERGE_POLICY", "earlier-wins")
	t.Setenv("TRIAL_EXTRACTOR_EXTRACTION_INTER_DOCUMENT_DELAY", "500ms")
	t.Setenv("TRIAL_EXTRACTOR_REGISTRY_ENABLED", "true")
	loadedSecrets = secrets.Set{
		secrets.AnthropicAPIKey: "sk-ant-file",
		secrets.CTGovUserAgent:  "lab-pipeline/2.0",
	}
	t.Cleanup(func() { loadedSecrets = nil })

	cfg := loadConfig()
	assert.Equal(t, types.ProviderAnthropic, cfg.Extraction.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Extraction.Model)
	assert.Equal(t, "sk-ant-file", cfg.Extraction.APIKey)
	assert.Equal(t, types.MergeEarlierWins, cfg.Extraction.MergePolicy)
	assert.Equal(t, 500*time.Millisecond, cfg.Extraction.InterDocumentDelay)
	assert.True(t, cfg.Registry.Enabled)
	assert.Equal(t, "lab-pipeline/2.0", cfg.Registry.UserAgent)
}

func TestNewExtractorRequiresKey(t *testing.T) {
	var cfg types.PipelineConfig
	cfg.Extraction.Provider = types.ProviderOpenAI
	_, err := newExtractor(cfg, nil)
	assert.ErrorContains(t, err, "no API key for openai")
}

func TestQCPairs(t *testing.T) {
	extracted, reference := t.TempDir(), t.TempDir()
	for _, name := range []string{"a.json", "b.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(reference, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(extracted, "a.json"), []byte("{}"), 0o644))

	pairs, err := qcPairs(extracted, reference)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, filepath.Join(extracted, "a.json"), pairs[0].extracted)
	assert.Empty(t, pairs[1].extracted)

	single, err := qcPairs("x.json", filepath.Join(reference, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, []qcPair{{extracted: "x.json", reference: filepath.Join(reference, "a.json")}}, single)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Keynote-006", 20, "Keynote-006"},
		{"Unresectable Cutaneous Melanoma", 10, "Unresec..."},
		{"Grade ≥3 AEs", 8, "Grade..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
