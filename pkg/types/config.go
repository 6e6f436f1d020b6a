package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "trial-extractor/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// Provider names the LLM service used for extraction.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Provider selects the LLM service: anthropic or openai.
	Provider Provider `json:"provider" yaml:"provider"`

	// Model is the AI model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxOutputTokens caps the completion length per call (default 4096).
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`

	// PromptPricePer1K is the cost in USD per 1,000 prompt tokens (default 0.00015).
	PromptPricePer1K float64 `json:"prompt_price_per_1k" yaml:"prompt_price_per_1k"`

	// CompletionPricePer1K is the cost in USD per 1,000 completion tokens (default 0.0006).
	CompletionPricePer1K float64 `json:"completion_price_per_1k" yaml:"completion_price_per_1k"`
}

// MergePolicy decides which value survives when two chunks of the same
// scope report the same field.
type MergePolicy string

const (
	// MergeLaterWins keeps the value from the chunk processed last.
	MergeLaterWins MergePolicy = "later-wins"
	// MergeEarlierWins keeps the first non-empty value.
	MergeEarlierWins MergePolicy = "earlier-wins"
	// MergeOverwrite applies each chunk as a plain key overwrite, so a later
	// missing sentinel replaces an earlier value.
	MergeOverwrite MergePolicy = "overwrite"
)

// ExtractionConfig holds settings for the extraction stage.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// MaxDocumentChars is the prompt budget for document text; text beyond
	// this many characters is dropped (default 55000).
	MaxDocumentChars int `json:"max_document_chars" yaml:"max_document_chars"`

	// MergePolicy resolves field collisions across chunks (default later-wins).
	MergePolicy MergePolicy `json:"merge_policy" yaml:"merge_policy"`

	// StrictArmCount makes a discovered-versus-processed arm count mismatch fatal.
	StrictArmCount bool `json:"strict_arm_count" yaml:"strict_arm_count"`

	// InterDocumentDelay is the pause between documents in a batch (default 2s).
	InterDocumentDelay time.Duration `json:"inter_document_delay" yaml:"inter_document_delay"`

	// InputDir holds source documents (.pdf, .md, .txt).
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// OutputDir receives one record file per document.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// OutputFormat selects record files: json or yaml (default json).
	OutputFormat string `json:"output_format" yaml:"output_format"`
}

// Defaults fills zero-valued settings with their defaults.
func (c *ExtractionConfig) Defaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderAnthropic:
			c.Model = "claude-sonnet-4-5-20250929"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 4096
	}
	if c.PromptPricePer1K == 0 && c.CompletionPricePer1K == 0 {
		c.PromptPricePer1K = 0.00015
		c.CompletionPricePer1K = 0.0006
	}
	if c.MaxDocumentChars <= 0 {
		c.MaxDocumentChars = 55000
	}
	if c.MergePolicy == "" {
		c.MergePolicy = MergeLaterWins
	}
	if c.InterDocumentDelay == 0 {
		c.InterDocumentDelay = 2 * time.Second
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "json"
	}
}

// ConversionBackend identifies the document-to-text tool.
type ConversionBackend string

const (
	BackendPDFCPU ConversionBackend = "pdfcpu"
	BackendMarker ConversionBackend = "marker"
	BackendText   ConversionBackend = "text"
)

// ConversionConfig holds settings for turning source files into plain text.
type ConversionConfig struct {
	// Backend selects the PDF tool: pdfcpu (native) or marker (container).
	// Markdown and text inputs are always read directly.
	Backend ConversionBackend `json:"backend" yaml:"backend"`

	// MarkerImage is the container image used by the marker backend.
	MarkerImage string `json:"marker_image" yaml:"marker_image"`
}

// Defaults fills zero-valued settings with their defaults.
func (c *ConversionConfig) Defaults() {
	if c.Backend == "" {
		c.Backend = BackendPDFCPU
	}
	if c.MarkerImage == "" {
		c.MarkerImage = "marker:latest"
	}
}

// RegistryConfig holds settings for ClinicalTrials.gov enrichment.
type RegistryConfig struct {
	HTTPConfig `yaml:",inline"`

	// Enabled turns registry enrichment on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BaseURL is the registry API root (default https://clinicaltrials.gov/api/v2).
	BaseURL string `json:"base_url" yaml:"base_url"`

	// MaxRetries bounds retries on 429 and 5xx responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// Defaults fills zero-valued settings with their defaults.
func (c *RegistryConfig) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://clinicaltrials.gov/api/v2"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "trial-extractor/0.1"
	}
}

// StoreConfig holds settings for the SQLite record store.
type StoreConfig struct {
	// Path is the database file (default output/trials.db).
	Path string `json:"path" yaml:"path"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion"`
	Registry   RegistryConfig   `json:"registry" yaml:"registry"`
	Store      StoreConfig      `json:"store" yaml:"store"`
}

// Defaults fills zero-valued settings with their defaults.
func (c *StoreConfig) Defaults() {
	if c.Path == "" {
		c.Path = "output/trials.db"
	}
}
