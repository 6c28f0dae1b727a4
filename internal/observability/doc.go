// Package observability provides logging, metrics, and tracing support for
// the review pipeline.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for runs, searches, evaluations, and reports
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_id", runID).Msg("run started")
//
// Add run context to logger:
//
//	logger = observability.WithRunContext(logger, runID, subject)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("litpipeline")
//
// Record metrics:
//
//	metrics.RecordRunStarted()
//	metrics.RecordSearchCompleted("semantic_scholar", 42, 1.2)
//	metrics.RecordPaperDuplicates(3)
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithRun(ctx, runID, subject)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	runID, subject := observability.RunFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - run_id: Pipeline run identifier
//   - subject: Review subject being searched
//   - phase: Current pipeline phase (searching, aggregating, scoring, reporting)
//   - source: Paper source (semantic_scholar, pubmed, arxiv, openalex)
//   - provider: Scoring oracle provider (openai, anthropic)
//   - trace_id: Distributed trace identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
