// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/convert"
	"github.com/pdiddy/trial-extractor/internal/extract"
	"github.com/pdiddy/trial-extractor/internal/llm"
	"github.com/pdiddy/trial-extractor/internal/registry"
	"github.com/pdiddy/trial-extractor/internal/secrets"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

func init() {
	viper.SetDefault("extraction.input_dir", "input")
	viper.SetDefault("extraction.output_dir", "output/records")
}

// loadConfig assembles the pipeline configuration from the config file,
// TRIAL_EXTRACTOR_* environment variables and flags, then fills defaults.
func loadConfig() types.PipelineConfig {
	var cfg types.PipelineConfig

	ex := &cfg.Extraction
	ex.Provider = types.Provider(viper.GetString("extraction.provider"))
	ex.Model = viper.GetString("extraction.model")
	ex.APIKey = viper.GetString("extraction.api_key")
	ex.MaxRetries = viper.GetInt("extraction.max_retries")
	ex.MaxOutputTokens = viper.GetInt("extraction.max_output_tokens")
	ex.PromptPricePer1K = viper.GetFloat64("extraction.prompt_price_per_1k")
	ex.CompletionPricePer1K = viper.GetFloat64("extraction.completion_price_per_1k")
	ex.MaxDocumentChars = viper.GetInt("extraction.max_document_chars")
	ex.MergePolicy = types.MergePolicy(viper.GetString("extraction.merge_policy"))
	ex.StrictArmCount = viper.GetBool("extraction.strict_arm_count")
	ex.InterDocumentDelay = viper.GetDuration("extraction.inter_document_delay")
	ex.InputDir = viper.GetString("extraction.input_dir")
	ex.OutputDir = viper.GetString("extraction.output_dir")
	ex.OutputFormat = viper.GetString("extraction.output_format")

	cfg.Conversion.Backend = types.ConversionBackend(viper.GetString("conversion.backend"))
	cfg.Conversion.MarkerImage = viper.GetString("conversion.marker_image")

	reg := &cfg.Registry
	reg.Enabled = viper.GetBool("registry.enabled")
	reg.BaseURL = viper.GetString("registry.base_url")
	reg.MaxRetries = viper.GetInt("registry.max_retries")
	reg.Timeout = viper.GetDuration("registry.timeout")
	reg.UserAgent = loadedSecrets.Resolve(viper.GetString("registry.user_agent"), secrets.CTGovUserAgent)

	cfg.Store.Path = viper.GetString("store.path")

	ex.Defaults()
	cfg.Conversion.Defaults()
	reg.Defaults()
	cfg.Store.Defaults()

	keyName := secrets.OpenAIAPIKey
	if ex.Provider == types.ProviderAnthropic {
		keyName = secrets.AnthropicAPIKey
	}
	ex.APIKey = loadedSecrets.Resolve(ex.APIKey, keyName)
	return cfg
}

// newExtractor builds the LLM client and the extractor, with registry
// enrichment when it is enabled.
func newExtractor(cfg types.PipelineConfig, cat *catalog.Catalog) (*extract.Extractor, error) {
	if cfg.Extraction.APIKey == "" {
		return nil, fmt.Errorf("no API key for %s: add .secrets/%s-api-key or set the provider's API key variable",
			cfg.Extraction.Provider, cfg.Extraction.Provider)
	}
	client, err := llm.New(cfg.Extraction.AIConfig)
	if err != nil {
		return nil, err
	}

	opts := []extract.Option{extract.WithLogger(logger)}
	if cfg.Registry.Enabled {
		opts = append(opts, extract.WithEnricher(registry.New(cfg.Registry, cat, registry.WithLogger(logger))))
	}
	return extract.New(client, cat, cfg.Extraction, opts...), nil
}

// newSource builds the document reader for the configured PDF backend.
func newSource(ctx context.Context, cfg types.PipelineConfig) (*convert.Source, error) {
	return convert.New(ctx, cfg.Conversion)
}
