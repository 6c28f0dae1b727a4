package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the review pipeline.
// Metrics are organized by subsystem: runs, phases, searches, papers,
// evaluations, oracle calls, and reports. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// RunsStarted counts the total number of pipeline runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts the total number of runs that reached Done.
	RunsCompleted prometheus.Counter

	// RunsFailed counts the total number of runs that ended in Failed.
	RunsFailed prometheus.Counter

	// RunsCancelled counts the total number of runs cancelled by the caller.
	RunsCancelled prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// PhaseDuration observes the duration of each pipeline phase in seconds.
	PhaseDuration *prometheus.HistogramVec

	// SearchesStarted counts searches initiated, labeled by paper source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful searches, labeled by paper source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by paper source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by paper source.
	SearchDuration *prometheus.HistogramVec

	// PapersPerSearch observes the distribution of papers returned per search, labeled by source.
	PapersPerSearch *prometheus.HistogramVec

	// PapersCollected counts the total number of papers added to collections.
	PapersCollected prometheus.Counter

	// PapersBySource counts papers collected, labeled by paper source.
	PapersBySource *prometheus.CounterVec

	// PapersDuplicate counts papers removed as duplicates during deduplication.
	PapersDuplicate prometheus.Counter

	// EvaluationsApplied counts oracle evaluations matched to a collected paper.
	EvaluationsApplied prometheus.Counter

	// EvaluationsUnmatched counts oracle evaluations that matched no paper.
	EvaluationsUnmatched prometheus.Counter

	// EvaluationsDropped counts malformed oracle entries discarded during parsing.
	EvaluationsDropped prometheus.Counter

	// OracleRequestsTotal counts scoring oracle requests, labeled by provider and model.
	OracleRequestsTotal *prometheus.CounterVec

	// OracleRequestsFailed counts failed oracle requests, labeled by provider, model, and error type.
	OracleRequestsFailed *prometheus.CounterVec

	// OracleRequestDuration observes oracle request duration in seconds, labeled by provider and model.
	OracleRequestDuration *prometheus.HistogramVec

	// OracleTokensUsed counts tokens consumed by oracle calls, labeled by model and token type.
	OracleTokensUsed *prometheus.CounterVec

	// ReportsGenerated counts reports generated successfully, labeled by kind.
	ReportsGenerated *prometheus.CounterVec

	// ReportsFailed counts report generation failures, labeled by kind.
	ReportsFailed *prometheus.CounterVec

	// ReportDuration observes report generation duration in seconds, labeled by kind.
	ReportDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Runs
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of pipeline runs that reached Done",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of pipeline runs that failed",
		}),
		RunsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_cancelled_total",
			Help:      "Total number of pipeline runs cancelled",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		PhaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),

		// Searches
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started by source",
		}, []string{"source"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of paper searches completed by source",
		}, []string{"source"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed by source",
		}, []string{"source"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds by source",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		PapersPerSearch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of papers returned per search by source",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}, []string{"source"}),

		// Papers
		PapersCollected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_collected_total",
			Help:      "Total number of papers added to collections",
		}),
		PapersBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_source_total",
			Help:      "Total number of papers collected by source",
		}, []string{"source"}),
		PapersDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of duplicate papers removed",
		}),

		// Evaluations
		EvaluationsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_applied_total",
			Help:      "Total number of oracle evaluations applied to papers",
		}),
		EvaluationsUnmatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_unmatched_total",
			Help:      "Total number of oracle evaluations that matched no paper",
		}),
		EvaluationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_dropped_total",
			Help:      "Total number of malformed oracle entries discarded",
		}),

		// Oracle
		OracleRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_total",
			Help:      "Total number of scoring oracle requests",
		}, []string{"provider", "model"}),
		OracleRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_failed_total",
			Help:      "Total number of failed scoring oracle requests",
		}, []string{"provider", "model", "error_type"}),
		OracleRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_request_duration_seconds",
			Help:      "Duration of scoring oracle requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),
		OracleTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_tokens_used_total",
			Help:      "Total number of tokens used by scoring oracle calls",
		}, []string{"model", "token_type"}),

		// Reports
		ReportsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated by kind",
		}, []string{"kind"}),
		ReportsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_failed_total",
			Help:      "Total number of report generation failures by kind",
		}, []string{"kind"}),
		ReportDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Duration of report generation in seconds by kind",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),
	}
}

// RecordRunStarted records that a pipeline run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records that a run reached Done.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records that a run ended in Failed.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunCancelled records that a run was cancelled.
func (m *Metrics) RecordRunCancelled() {
	m.RunsCancelled.Inc()
}

// RecordPhaseDuration records the duration of a single pipeline phase.
func (m *Metrics) RecordPhaseDuration(phase string, durationSeconds float64) {
	m.PhaseDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(source string, paperCount int, durationSeconds float64) {
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.PapersPerSearch.WithLabelValues(source).Observe(float64(paperCount))
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordPapersCollected records papers added to a collection from a source.
func (m *Metrics) RecordPapersCollected(source string, count int) {
	m.PapersCollected.Add(float64(count))
	m.PapersBySource.WithLabelValues(source).Add(float64(count))
}

// RecordPaperDuplicates records papers removed during deduplication.
func (m *Metrics) RecordPaperDuplicates(count int) {
	m.PapersDuplicate.Add(float64(count))
}

// RecordEvaluations records the outcome of applying a batch of oracle
// evaluations to a collection.
func (m *Metrics) RecordEvaluations(applied, unmatched, dropped int) {
	m.EvaluationsApplied.Add(float64(applied))
	m.EvaluationsUnmatched.Add(float64(unmatched))
	m.EvaluationsDropped.Add(float64(dropped))
}

// RecordOracleRequest records a scoring oracle request.
func (m *Metrics) RecordOracleRequest(provider, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.OracleRequestsTotal.WithLabelValues(provider, model).Inc()
	m.OracleRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	m.OracleTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.OracleTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// RecordOracleRequestFailed records a failed scoring oracle request.
func (m *Metrics) RecordOracleRequestFailed(provider, model, errorType string) {
	m.OracleRequestsFailed.WithLabelValues(provider, model, errorType).Inc()
}

// RecordReportGenerated records a successful report generation.
func (m *Metrics) RecordReportGenerated(kind string, durationSeconds float64) {
	m.ReportsGenerated.WithLabelValues(kind).Inc()
	m.ReportDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordReportFailed records a report generation failure.
func (m *Metrics) RecordReportFailed(kind string, durationSeconds float64) {
	m.ReportsFailed.WithLabelValues(kind).Inc()
	m.ReportDuration.WithLabelValues(kind).Observe(durationSeconds)
}
