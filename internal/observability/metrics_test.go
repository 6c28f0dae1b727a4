package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_litpipeline_new")

	assert.NotNil(t, m.RunsStarted)
	assert.NotNil(t, m.RunsCompleted)
	assert.NotNil(t, m.RunsFailed)
	assert.NotNil(t, m.RunsCancelled)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.PhaseDuration)
	assert.NotNil(t, m.SearchesStarted)
	assert.NotNil(t, m.SearchesCompleted)
	assert.NotNil(t, m.SearchesFailed)
	assert.NotNil(t, m.PapersCollected)
	assert.NotNil(t, m.PapersBySource)
	assert.NotNil(t, m.PapersDuplicate)
	assert.NotNil(t, m.EvaluationsApplied)
	assert.NotNil(t, m.OracleRequestsTotal)
	assert.NotNil(t, m.OracleTokensUsed)
	assert.NotNil(t, m.ReportsGenerated)
	assert.NotNil(t, m.ReportsFailed)
}

func TestRecordRunStarted(t *testing.T) {
	m := NewMetrics("test_run_started")

	initial := testutil.ToFloat64(m.RunsStarted)
	m.RecordRunStarted()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.RunsStarted))
}

func TestRecordRunCompleted(t *testing.T) {
	m := NewMetrics("test_run_completed")

	initial := testutil.ToFloat64(m.RunsCompleted)
	m.RecordRunCompleted(5.5)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.RunsCompleted))

	// Check histogram
	histCount, err := getHistogramSampleCount(m.RunDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordRunFailed(t *testing.T) {
	m := NewMetrics("test_run_failed")

	initial := testutil.ToFloat64(m.RunsFailed)
	m.RecordRunFailed(3.0)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.RunsFailed))
}

func TestRecordRunCancelled(t *testing.T) {
	m := NewMetrics("test_run_cancelled")

	initial := testutil.ToFloat64(m.RunsCancelled)
	m.RecordRunCancelled()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.RunsCancelled))
}

func TestRecordSearchStarted(t *testing.T) {
	m := NewMetrics("test_search_started")

	m.RecordSearchStarted("semantic_scholar")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesStarted.WithLabelValues("semantic_scholar")))
}

func TestRecordSearchCompleted(t *testing.T) {
	m := NewMetrics("test_search_completed")

	m.RecordSearchCompleted("openalex", 42, 2.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesCompleted.WithLabelValues("openalex")))
}

func TestRecordSearchFailed(t *testing.T) {
	m := NewMetrics("test_search_failed")

	m.RecordSearchFailed("pubmed", 1.0)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesFailed.WithLabelValues("pubmed")))
}

func TestRecordPapersCollected(t *testing.T) {
	m := NewMetrics("test_papers_collected")

	initial := testutil.ToFloat64(m.PapersCollected)
	m.RecordPapersCollected("semantic_scholar", 25)
	assert.Equal(t, initial+25, testutil.ToFloat64(m.PapersCollected))
	assert.Equal(t, float64(25), testutil.ToFloat64(m.PapersBySource.WithLabelValues("semantic_scholar")))
}

func TestRecordPaperDuplicates(t *testing.T) {
	m := NewMetrics("test_paper_duplicates")

	initial := testutil.ToFloat64(m.PapersDuplicate)
	m.RecordPaperDuplicates(3)
	assert.Equal(t, initial+3, testutil.ToFloat64(m.PapersDuplicate))
}

func TestRecordEvaluations(t *testing.T) {
	m := NewMetrics("test_evaluations")

	m.RecordEvaluations(10, 2, 1)
	assert.Equal(t, float64(10), testutil.ToFloat64(m.EvaluationsApplied))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EvaluationsUnmatched))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EvaluationsDropped))
}

func TestRecordPhaseDuration(t *testing.T) {
	m := NewMetrics("test_phase_duration")

	m.RecordPhaseDuration("searching", 2.0)
	histCount, err := getHistogramSampleCount(m.PhaseDuration.WithLabelValues("searching").(prometheus.Histogram))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordOracleRequest(t *testing.T) {
	m := NewMetrics("test_oracle_request")

	m.RecordOracleRequest("openai", "gpt-4o", 2.5, 100, 50)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OracleRequestsTotal.WithLabelValues("openai", "gpt-4o")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.OracleTokensUsed.WithLabelValues("gpt-4o", "input")))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.OracleTokensUsed.WithLabelValues("gpt-4o", "output")))
}

func TestRecordOracleRequestFailed(t *testing.T) {
	m := NewMetrics("test_oracle_request_failed")

	m.RecordOracleRequestFailed("anthropic", "claude-sonnet-4-20250514", "rate_limit")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OracleRequestsFailed.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "rate_limit")))
}

func TestRecordReportGenerated(t *testing.T) {
	m := NewMetrics("test_report_generated")

	m.RecordReportGenerated("pdf", 0.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReportsGenerated.WithLabelValues("pdf")))
}

func TestRecordReportFailed(t *testing.T) {
	m := NewMetrics("test_report_failed")

	m.RecordReportFailed("html", 0.1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReportsFailed.WithLabelValues("html")))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
