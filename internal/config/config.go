// Package config provides configuration management for the review pipeline
// service. Values come from defaults, an optional YAML file, and environment
// variables with the LITPIPELINE_ prefix; secrets come from the environment
// only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the review pipeline service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Pipeline contains orchestrator phase settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Scoring contains rubric weighting and dedup settings.
	Scoring ScoringConfig `mapstructure:"scoring"`
	// Oracle contains scoring oracle provider settings.
	Oracle OracleConfig `mapstructure:"oracle"`
	// PaperSources contains paper source API configurations.
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
	// Reports contains report generation settings.
	Reports ReportsConfig `mapstructure:"reports"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host" validate:"required"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port" validate:"gte=1,lte=65535"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	// Format is the log format (json, console, pretty).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace is the metric name prefix.
	Namespace string `mapstructure:"namespace"`
}

// PipelineConfig holds orchestrator phase settings.
type PipelineConfig struct {
	// SearchTimeout bounds the search phase.
	SearchTimeout time.Duration `mapstructure:"search_timeout" validate:"gt=0"`
	// ScoringTimeout bounds the scoring phase.
	ScoringTimeout time.Duration `mapstructure:"scoring_timeout" validate:"gt=0"`
	// ReportTimeout bounds the report phase.
	ReportTimeout time.Duration `mapstructure:"report_timeout" validate:"gt=0"`
	// PerSourceCount is the default number of records requested from each
	// source when a run request omits one (bounds 1-20).
	PerSourceCount int `mapstructure:"per_source_count" validate:"gte=1,lte=20"`
}

// ScoringConfig holds rubric weighting and dedup settings.
type ScoringConfig struct {
	// RelevanceWeight, MethodologyWeight, and ImpactWeight fix the combined
	// score formula. They must be non-negative and sum to a positive value.
	RelevanceWeight   float64 `mapstructure:"relevance_weight" validate:"gte=0"`
	MethodologyWeight float64 `mapstructure:"methodology_weight" validate:"gte=0"`
	ImpactWeight      float64 `mapstructure:"impact_weight" validate:"gte=0"`
	// SimilarityThreshold is the title similarity threshold for dedup (0.0-1.0).
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gt=0,lte=1"`
}

// OracleConfig holds scoring oracle provider settings.
type OracleConfig struct {
	// Provider is the oracle provider (openai, anthropic).
	Provider string `mapstructure:"provider" validate:"oneof=openai anthropic"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	// Timeout is the timeout for oracle API calls.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from LITPIPELINE_ORACLE_OPENAI_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from LITPIPELINE_ORACLE_ANTHROPIC_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// PaperSourcesConfig holds configuration for all paper source APIs.
type PaperSourcesConfig struct {
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
	// PubMed contains PubMed API settings.
	PubMed PaperSourceConfig `mapstructure:"pubmed"`
	// ArXiv contains arXiv API settings.
	ArXiv PaperSourceConfig `mapstructure:"arxiv"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex PaperSourceConfig `mapstructure:"openalex"`
}

// PaperSourceConfig holds configuration for a single paper source API.
type PaperSourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from the environment, e.g.
	// LITPIPELINE_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// BurstSize is the rate limiter burst size.
	BurstSize int `mapstructure:"burst_size" validate:"gte=0"`
	// Email identifies the caller to providers with a polite pool (OpenAlex).
	Email string `mapstructure:"email"`
}

// ReportsConfig holds report generation settings.
type ReportsConfig struct {
	// OutputDir is the directory report artifacts are written to.
	OutputDir string `mapstructure:"output_dir" validate:"required"`
	// HTMLEnabled controls the HTML generator.
	HTMLEnabled bool `mapstructure:"html_enabled"`
	// PDFEnabled controls the PDF generator.
	PDFEnabled bool `mapstructure:"pdf_enabled"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("LITPIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/litpipeline")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	// Oracle provider API keys.
	cfg.Oracle.OpenAI.APIKey = os.Getenv("LITPIPELINE_ORACLE_OPENAI_API_KEY")
	cfg.Oracle.Anthropic.APIKey = os.Getenv("LITPIPELINE_ORACLE_ANTHROPIC_API_KEY")

	// Paper source API keys.
	cfg.PaperSources.SemanticScholar.APIKey = os.Getenv("LITPIPELINE_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.PaperSources.PubMed.APIKey = os.Getenv("LITPIPELINE_PAPER_SOURCES_PUBMED_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "litpipeline")

	// Pipeline defaults
	v.SetDefault("pipeline.search_timeout", "2m")
	v.SetDefault("pipeline.scoring_timeout", "5m")
	v.SetDefault("pipeline.report_timeout", "2m")
	v.SetDefault("pipeline.per_source_count", 7)

	// Scoring defaults: equal weights, dedup threshold 0.90
	v.SetDefault("scoring.relevance_weight", 1.0)
	v.SetDefault("scoring.methodology_weight", 1.0)
	v.SetDefault("scoring.impact_weight", 1.0)
	v.SetDefault("scoring.similarity_threshold", 0.90)

	// Oracle defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("oracle.provider", "openai")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("oracle.retry_delay", "2s")
	v.SetDefault("oracle.openai.model", "gpt-4o")
	v.SetDefault("oracle.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("oracle.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("oracle.anthropic.base_url", "https://api.anthropic.com")

	// Paper sources defaults - Semantic Scholar
	v.SetDefault("paper_sources.semantic_scholar.enabled", true)
	v.SetDefault("paper_sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("paper_sources.semantic_scholar.timeout", "30s")
	v.SetDefault("paper_sources.semantic_scholar.rate_limit", 10.0)
	v.SetDefault("paper_sources.semantic_scholar.burst_size", 10)

	// Paper sources defaults - PubMed
	v.SetDefault("paper_sources.pubmed.enabled", true)
	v.SetDefault("paper_sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("paper_sources.pubmed.timeout", "30s")
	v.SetDefault("paper_sources.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key
	v.SetDefault("paper_sources.pubmed.burst_size", 3)

	// Paper sources defaults - arXiv
	v.SetDefault("paper_sources.arxiv.enabled", true)
	v.SetDefault("paper_sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("paper_sources.arxiv.timeout", "30s")
	v.SetDefault("paper_sources.arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("paper_sources.arxiv.burst_size", 3)

	// Paper sources defaults - OpenAlex
	v.SetDefault("paper_sources.openalex.enabled", true)
	v.SetDefault("paper_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("paper_sources.openalex.timeout", "30s")
	v.SetDefault("paper_sources.openalex.rate_limit", 10.0)
	v.SetDefault("paper_sources.openalex.burst_size", 10)
	v.SetDefault("paper_sources.openalex.email", "")

	// Reports defaults
	v.SetDefault("reports.output_dir", "reports")
	v.SetDefault("reports.html_enabled", true)
	v.SetDefault("reports.pdf_enabled", true)
}

// Validate validates the configuration: struct tags first, then cross-field
// rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("config validation setup: %w", err)
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid config field %s: failed %q constraint", fe.Namespace(), fe.Tag())
		}
		return err
	}

	if c.Scoring.RelevanceWeight+c.Scoring.MethodologyWeight+c.Scoring.ImpactWeight <= 0 {
		return fmt.Errorf("scoring weights must sum to a positive value")
	}

	// The configured oracle provider must have its API key set.
	switch strings.ToLower(c.Oracle.Provider) {
	case "openai":
		if c.Oracle.OpenAI.APIKey == "" {
			return fmt.Errorf("oracle provider %q requires LITPIPELINE_ORACLE_OPENAI_API_KEY to be set", c.Oracle.Provider)
		}
	case "anthropic":
		if c.Oracle.Anthropic.APIKey == "" {
			return fmt.Errorf("oracle provider %q requires LITPIPELINE_ORACLE_ANTHROPIC_API_KEY to be set", c.Oracle.Provider)
		}
	}

	if !c.Reports.HTMLEnabled && !c.Reports.PDFEnabled {
		return fmt.Errorf("at least one report kind must be enabled")
	}

	return nil
}
