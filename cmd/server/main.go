// Package main provides the entry point for the literature review pipeline server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/questscholar/litpipeline/internal/config"
	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/llm"
	"github.com/questscholar/litpipeline/internal/observability"
	"github.com/questscholar/litpipeline/internal/papersources"
	"github.com/questscholar/litpipeline/internal/papersources/arxiv"
	"github.com/questscholar/litpipeline/internal/papersources/openalex"
	"github.com/questscholar/litpipeline/internal/papersources/pubmed"
	"github.com/questscholar/litpipeline/internal/papersources/semanticscholar"
	"github.com/questscholar/litpipeline/internal/pipeline"
	"github.com/questscholar/litpipeline/internal/report"
	httpserver "github.com/questscholar/litpipeline/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("litpipeline server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Register the paper sources. Disabled sources are registered too so
	// the registry can report them; only enabled ones are launched.
	registry := buildRegistry(cfg)
	logger.Info().Int("enabled_sources", len(registry.EnabledSources())).Msg("paper sources registered")

	// Create the scoring oracle.
	provider, err := llm.NewChatProvider(llm.FactoryConfig{
		Provider:    cfg.Oracle.Provider,
		Temperature: cfg.Oracle.Temperature,
		Timeout:     cfg.Oracle.Timeout,
		MaxRetries:  cfg.Oracle.MaxRetries,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.Oracle.OpenAI.APIKey,
			Model:   cfg.Oracle.OpenAI.Model,
			BaseURL: cfg.Oracle.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.Oracle.Anthropic.APIKey,
			Model:   cfg.Oracle.Anthropic.Model,
			BaseURL: cfg.Oracle.Anthropic.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create oracle provider: %w", err)
	}
	critic := llm.NewCritic(provider, logger)

	// Create the report generators.
	generators := buildGenerators(cfg, logger)
	if len(generators) == 0 {
		return fmt.Errorf("no report kinds enabled")
	}

	runner := pipeline.NewRunner(pipeline.Config{
		SearchTimeout:  cfg.Pipeline.SearchTimeout,
		ScoringTimeout: cfg.Pipeline.ScoringTimeout,
		ReportTimeout:  cfg.Pipeline.ReportTimeout,
		Weights: domain.ScoreWeights{
			Relevance:   cfg.Scoring.RelevanceWeight,
			Methodology: cfg.Scoring.MethodologyWeight,
			Impact:      cfg.Scoring.ImpactWeight,
		},
		SimilarityThreshold: cfg.Scoring.SimilarityThreshold,
	}, pipeline.Deps{
		Registry:   registry,
		Scorer:     critic,
		Generators: generators,
		Metrics:    metrics,
		Logger:     logger,
	})

	manager := httpserver.NewRunManager(runner, logger)
	srv := httpserver.NewServer(httpserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.HTTPPort,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}, manager, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Drain in-flight runs, then the HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("run manager did not drain in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info().Msg("litpipeline server stopped")
	return nil
}

// buildRegistry creates the source clients from configuration and registers
// them in launch order.
func buildRegistry(cfg *config.Config) *papersources.Registry {
	registry := papersources.NewRegistry()

	registry.Register(semanticscholar.NewClient(semanticscholar.Config{
		BaseURL:   cfg.PaperSources.SemanticScholar.BaseURL,
		APIKey:    cfg.PaperSources.SemanticScholar.APIKey,
		Timeout:   cfg.PaperSources.SemanticScholar.Timeout,
		RateLimit: cfg.PaperSources.SemanticScholar.RateLimit,
		BurstSize: cfg.PaperSources.SemanticScholar.BurstSize,
		Enabled:   cfg.PaperSources.SemanticScholar.Enabled,
	}, nil))

	registry.Register(pubmed.New(pubmed.Config{
		BaseURL:   cfg.PaperSources.PubMed.BaseURL,
		APIKey:    cfg.PaperSources.PubMed.APIKey,
		Timeout:   cfg.PaperSources.PubMed.Timeout,
		RateLimit: cfg.PaperSources.PubMed.RateLimit,
		BurstSize: cfg.PaperSources.PubMed.BurstSize,
		Enabled:   cfg.PaperSources.PubMed.Enabled,
	}))

	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:   cfg.PaperSources.ArXiv.BaseURL,
		Timeout:   cfg.PaperSources.ArXiv.Timeout,
		RateLimit: cfg.PaperSources.ArXiv.RateLimit,
		BurstSize: cfg.PaperSources.ArXiv.BurstSize,
		Enabled:   cfg.PaperSources.ArXiv.Enabled,
	}))

	registry.Register(openalex.New(openalex.Config{
		BaseURL:   cfg.PaperSources.OpenAlex.BaseURL,
		Email:     cfg.PaperSources.OpenAlex.Email,
		Timeout:   cfg.PaperSources.OpenAlex.Timeout,
		RateLimit: cfg.PaperSources.OpenAlex.RateLimit,
		BurstSize: cfg.PaperSources.OpenAlex.BurstSize,
		Enabled:   cfg.PaperSources.OpenAlex.Enabled,
	}))

	return registry
}

// buildGenerators creates one generator per enabled report kind.
func buildGenerators(cfg *config.Config, logger zerolog.Logger) []report.Generator {
	var generators []report.Generator
	if cfg.Reports.PDFEnabled {
		generators = append(generators, report.NewPDFGenerator(cfg.Reports.OutputDir, logger))
	}
	if cfg.Reports.HTMLEnabled {
		generators = append(generators, report.NewHTMLGenerator(cfg.Reports.OutputDir, logger))
	}
	return generators
}
