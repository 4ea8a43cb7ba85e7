package types

import "time"

// AIConfig holds settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the chat model identifier (default "gpt-4o-mini").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint, for compatible gateways and tests.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout bounds a single model call (default 60s). Expiry fails the call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of extra attempts for a failed call (default 0).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the base delay between attempts (default 2s).
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// DefaultTimeout is the per-call timeout used when none is configured.
const DefaultTimeout = 60 * time.Second

// TextConfig holds settings for PDF text extraction.
type TextConfig struct {
	// MaxPages caps the pages read into the form text. Zero reads every page.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
}

// ExtractionConfig holds settings for structured-data extraction.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// NormalizeKeys folds record keys to snake_case after parsing.
	NormalizeKeys bool `json:"normalize_keys" yaml:"normalize_keys"`
}

// SummaryConfig holds settings for the attachment and report summarizers.
type SummaryConfig struct {
	AIConfig `yaml:",inline"`

	// FormDescription names the kind of filing in the report prompt
	// (default "company's auditor appointment form (ADT-1)").
	FormDescription string `json:"form_description" yaml:"form_description"`
}

// DefaultFormDescription describes the filings the pipeline was built for.
const DefaultFormDescription = "company's auditor appointment form (ADT-1)"

// ExistingPolicy controls what a batch run does with artifacts from a previous run.
type ExistingPolicy string

const (
	// ExistingOverwrite reprocesses every document and replaces its artifacts.
	ExistingOverwrite ExistingPolicy = "overwrite"

	// ExistingSkipUnchanged keeps documents whose final summary is newer than the PDF.
	ExistingSkipUnchanged ExistingPolicy = "skip-unchanged"
)

// BatchConfig holds settings for the batch orchestrator.
type BatchConfig struct {
	// InputDir is scanned for PDFs when no explicit paths are given (default "input").
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// OutputDir receives the artifacts and the run report (default "output").
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Pattern selects files inside a scanned directory (default "*.pdf").
	Pattern string `json:"pattern" yaml:"pattern"`

	// Concurrency is the number of documents processed at once (default 1).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// OnExisting selects the policy for artifacts from earlier runs.
	OnExisting ExistingPolicy `json:"on_existing" yaml:"on_existing"`

	// Echo prints records and summaries alongside the progress lines.
	Echo bool `json:"echo" yaml:"echo"`

	// Model is recorded in the run report.
	Model string `json:"model" yaml:"model"`
}

// CatalogConfig holds settings for the filing catalog.
type CatalogConfig struct {
	// Dir holds filings.db and export files (default "catalog").
	Dir string `json:"dir" yaml:"dir"`

	// OutputDir is the batch output directory the catalog ingests from.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// MaxResults is the default search result limit (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}
