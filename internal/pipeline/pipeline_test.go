package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questscholar/litpipeline/internal/collection"
	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/llm"
	"github.com/questscholar/litpipeline/internal/observability"
	"github.com/questscholar/litpipeline/internal/papersources"
	"github.com/questscholar/litpipeline/internal/report"
)

// stubSource is a PaperSource returning canned records or a canned error.
type stubSource struct {
	sourceType domain.SourceType
	records    []domain.PaperRecord
	err        error
	lastParams papersources.SearchParams
}

func (s *stubSource) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	s.lastParams = params
	if s.err != nil {
		return nil, s.err
	}
	return &papersources.SearchResult{
		Records:        s.records,
		TotalResults:   len(s.records),
		Source:         s.sourceType,
		SearchDuration: 5 * time.Millisecond,
	}, nil
}

func (s *stubSource) SourceType() domain.SourceType { return s.sourceType }
func (s *stubSource) Name() string                  { return string(s.sourceType) }
func (s *stubSource) IsEnabled() bool               { return true }

// stubScorer returns canned evaluations or an error, recording the snapshot
// it was called with.
type stubScorer struct {
	result       *llm.CriticResult
	err          error
	calls        int
	lastSnapshot []collection.PaperSummary
}

func (s *stubScorer) Evaluate(ctx context.Context, subject string, snapshot []collection.PaperSummary) (*llm.CriticResult, error) {
	s.calls++
	s.lastSnapshot = snapshot
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	// Default: evaluate every snapshotted paper with a fixed rubric.
	evals := make([]domain.Evaluation, 0, len(snapshot))
	for i, p := range snapshot {
		evals = append(evals, domain.Evaluation{
			Title:       p.Title,
			Relevance:   4 - float64(i)*0.5,
			Methodology: 4,
			Impact:      4,
			Action:      domain.ActionInclude,
		})
	}
	return &llm.CriticResult{Evaluations: evals, Model: "stub-model", InputTokens: 120, OutputTokens: 40}, nil
}

func (s *stubScorer) Provider() string { return "stub" }

func (s *stubScorer) Model() string { return "stub-model" }

// stubGenerator records the input it rendered and returns a canned artifact
// or error.
type stubGenerator struct {
	kind      domain.ReportKind
	err       error
	calls     int
	lastInput report.Input
}

func (g *stubGenerator) Kind() domain.ReportKind { return g.kind }

func (g *stubGenerator) Generate(ctx context.Context, in report.Input) (*report.Artifact, error) {
	g.calls++
	g.lastInput = in
	if g.err != nil {
		return nil, g.err
	}
	return &report.Artifact{Kind: g.kind, Path: "/tmp/report." + string(g.kind), SizeBytes: 1024}, nil
}

func record(title string, year int, source domain.SourceType, citations int) domain.PaperRecord {
	c := citations
	return domain.PaperRecord{
		Title:         title,
		Source:        source,
		Authors:       []string{"Test Author"},
		Year:          year,
		CitationCount: &c,
	}
}

func newTestRunner(t *testing.T, sources []papersources.PaperSource, scorer Scorer, generators []report.Generator) *Runner {
	t.Helper()
	registry := papersources.NewRegistry()
	for _, src := range sources {
		registry.Register(src)
	}
	return NewRunner(Config{}, Deps{
		Registry:   registry,
		Scorer:     scorer,
		Generators: generators,
		Logger:     zerolog.Nop(),
	})
}

func validRunConfig() RunConfig {
	return RunConfig{
		Subject:   "machine learning oncology",
		StartYear: 2019,
		EndYear:   2024,
	}
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	// Two sources, three records each, one overlapping title. Five unique
	// records survive and all of them get evaluated.
	s2 := &stubSource{
		sourceType: domain.SourceTypeSemanticScholar,
		records: []domain.PaperRecord{
			record("Deep Learning for Tumor Segmentation in Radiology Images", 2021, domain.SourceTypeSemanticScholar, 120),
			record("Transfer Learning in Clinical Oncology", 2022, domain.SourceTypeSemanticScholar, 45),
			record("Graph Models of Drug Response", 2020, domain.SourceTypeSemanticScholar, 12),
		},
	}
	pm := &stubSource{
		sourceType: domain.SourceTypePubMed,
		records: []domain.PaperRecord{
			// Near-identical to the first Semantic Scholar record, one year
			// off: similar enough to survive Add but fall to Deduplicate.
			record("Deep Learning for Tumor Segmentation in Clinical Radiology Images", 2022, domain.SourceTypePubMed, 80),
			record("Survival Prediction with Multimodal Data", 2023, domain.SourceTypePubMed, 30),
			record("Biomarker Discovery via Language Models", 2024, domain.SourceTypePubMed, 5),
		},
	}
	scorer := &stubScorer{}
	htmlGen := &stubGenerator{kind: domain.ReportKindHTML}
	pdfGen := &stubGenerator{kind: domain.ReportKindPDF}

	runner := newTestRunner(t, []papersources.PaperSource{pm, s2}, scorer, []report.Generator{htmlGen, pdfGen})
	summary, err := runner.Run(context.Background(), validRunConfig())
	require.NoError(t, err)

	assert.Equal(t, domain.RunStateDone, summary.State)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 6, summary.TotalCollected)
	assert.Equal(t, 1, summary.DuplicatesRemoved)
	assert.Equal(t, 5, summary.Surviving)
	assert.Equal(t, 5, summary.Evaluated)
	assert.Equal(t, 0, summary.Unmatched)
	assert.Equal(t, 0, summary.Malformed)

	// Source outcomes follow launch order regardless of registration order.
	require.Len(t, summary.Sources, 2)
	assert.Equal(t, domain.SourceTypeSemanticScholar, summary.Sources[0].Source)
	assert.Equal(t, domain.SourceTypePubMed, summary.Sources[1].Source)
	assert.Equal(t, 3, summary.Sources[0].Found)
	assert.Equal(t, 3, summary.Sources[0].Added)
	assert.Equal(t, 3, summary.Sources[1].Found)
	assert.Equal(t, 3, summary.Sources[1].Added)

	// Duplicate tie-break keeps the earlier launch-order source.
	require.Equal(t, 1, htmlGen.calls)
	require.Len(t, htmlGen.lastInput.Papers, 5)
	for _, p := range htmlGen.lastInput.Papers {
		if p.Record.Title == "Deep Learning for Tumor Segmentation in Radiology Images" {
			assert.Equal(t, domain.SourceTypeSemanticScholar, p.Record.Source)
		}
	}

	// Ranked view is sorted by combined score, descending.
	papers := htmlGen.lastInput.Papers
	for i := 1; i < len(papers); i++ {
		assert.GreaterOrEqual(t, papers[i-1].Combined, papers[i].Combined)
	}

	// Both reports succeeded.
	require.Len(t, summary.Reports, 2)
	for _, out := range summary.Reports {
		assert.Empty(t, out.Error)
		assert.NotEmpty(t, out.Path)
	}

	// Per-source cap defaulted.
	assert.Equal(t, DefaultPerSourceCount, s2.lastParams.MaxCount)

	// Every phase reported a duration.
	for _, phase := range []string{PhaseSearching, PhaseAggregating, PhaseScoring, PhaseReporting} {
		assert.Contains(t, summary.PhaseDurations, phase)
	}
}

func TestRunConfigurationInvalid(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{}
	runner := newTestRunner(t, nil, scorer, nil)

	tests := []struct {
		name string
		rc   RunConfig
	}{
		{"empty subject", RunConfig{Subject: "  ", StartYear: 2020, EndYear: 2024}},
		{"inverted year range", RunConfig{Subject: "genomics", StartYear: 2024, EndYear: 2020}},
		{"per source count too high", RunConfig{Subject: "genomics", StartYear: 2020, EndYear: 2024, PerSourceCount: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := runner.Run(context.Background(), tt.rc)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
			// The run never leaves Idle.
			assert.Equal(t, domain.RunStateIdle, summary.State)
			assert.NotEmpty(t, summary.Error)
			assert.Zero(t, scorer.calls)
		})
	}
}

func TestRunAllSourcesFailed(t *testing.T) {
	t.Parallel()

	s2 := &stubSource{
		sourceType: domain.SourceTypeSemanticScholar,
		err:        domain.NewSourceError(domain.SourceTypeSemanticScholar, "search request failed", errors.New("boom")),
	}
	pm := &stubSource{
		sourceType: domain.SourceTypePubMed,
		err:        domain.NewSourceError(domain.SourceTypePubMed, "search request failed", errors.New("boom")),
	}
	scorer := &stubScorer{}
	htmlGen := &stubGenerator{kind: domain.ReportKindHTML}

	runner := newTestRunner(t, []papersources.PaperSource{s2, pm}, scorer, []report.Generator{htmlGen})
	summary, err := runner.Run(context.Background(), validRunConfig())
	require.NoError(t, err)

	// Source failure is never fatal; the run reaches Done with an empty
	// collection and the report is generated for zero papers.
	assert.Equal(t, domain.RunStateDone, summary.State)
	assert.Equal(t, 0, summary.Surviving)
	require.Len(t, summary.Sources, 2)
	for _, out := range summary.Sources {
		assert.NotEmpty(t, out.Error)
		assert.Zero(t, out.Found)
	}

	// Empty collection skips the oracle entirely.
	assert.Zero(t, scorer.calls)

	require.Equal(t, 1, htmlGen.calls)
	assert.Empty(t, htmlGen.lastInput.Papers)
	require.Len(t, summary.Reports, 1)
	assert.Empty(t, summary.Reports[0].Error)
}

func TestRunReportFailureIsIndependent(t *testing.T) {
	t.Parallel()

	src := &stubSource{
		sourceType: domain.SourceTypeArXiv,
		records:    []domain.PaperRecord{record("Attention Mechanisms Revisited", 2022, domain.SourceTypeArXiv, 900)},
	}
	pdfGen := &stubGenerator{
		kind: domain.ReportKindPDF,
		err:  domain.NewReportError(domain.ReportKindPDF, errors.New("disk full")),
	}
	htmlGen := &stubGenerator{kind: domain.ReportKindHTML}

	runner := newTestRunner(t, []papersources.PaperSource{src}, &stubScorer{}, []report.Generator{pdfGen, htmlGen})
	summary, err := runner.Run(context.Background(), validRunConfig())
	require.NoError(t, err)

	// One failed report does not block the other, and the run reaches Done.
	assert.Equal(t, domain.RunStateDone, summary.State)
	require.Len(t, summary.Reports, 2)

	byKind := map[domain.ReportKind]ReportOutcome{}
	for _, out := range summary.Reports {
		byKind[out.Kind] = out
	}
	assert.NotEmpty(t, byKind[domain.ReportKindPDF].Error)
	assert.Empty(t, byKind[domain.ReportKindHTML].Error)
	assert.NotEmpty(t, byKind[domain.ReportKindHTML].Path)
	assert.Equal(t, 1, htmlGen.calls)
}

func TestRunOracleMalformedContinuesUnevaluated(t *testing.T) {
	t.Parallel()

	src := &stubSource{
		sourceType: domain.SourceTypeOpenAlex,
		records: []domain.PaperRecord{
			record("Protein Structure Prediction Advances", 2023, domain.SourceTypeOpenAlex, 300),
			record("Folding Dynamics at Scale", 2022, domain.SourceTypeOpenAlex, 50),
		},
	}
	scorer := &stubScorer{err: domain.NewOracleError("", "response is not valid JSON")}
	htmlGen := &stubGenerator{kind: domain.ReportKindHTML}

	runner := newTestRunner(t, []papersources.PaperSource{src}, scorer, []report.Generator{htmlGen})
	summary, err := runner.Run(context.Background(), validRunConfig())
	require.NoError(t, err)

	// A fully malformed oracle response drops the whole batch; the run still
	// reaches Done with unevaluated papers.
	assert.Equal(t, domain.RunStateDone, summary.State)
	assert.Equal(t, 0, summary.Evaluated)
	assert.Equal(t, 2, summary.Malformed)
	require.Len(t, htmlGen.lastInput.Papers, 2)
	for _, p := range htmlGen.lastInput.Papers {
		assert.False(t, p.Evaluated)
	}
}

func TestRunScorerFailureFailsRun(t *testing.T) {
	t.Parallel()

	src := &stubSource{
		sourceType: domain.SourceTypePubMed,
		records:    []domain.PaperRecord{record("CRISPR Screening Methods", 2021, domain.SourceTypePubMed, 70)},
	}
	scorer := &stubScorer{err: errors.New("provider unreachable")}
	htmlGen := &stubGenerator{kind: domain.ReportKindHTML}

	runner := newTestRunner(t, []papersources.PaperSource{src}, scorer, []report.Generator{htmlGen})
	summary, err := runner.Run(context.Background(), validRunConfig())
	require.Error(t, err)

	assert.Equal(t, domain.RunStateFailed, summary.State)
	assert.Contains(t, summary.Error, "provider unreachable")
	assert.Zero(t, htmlGen.calls)
	assert.False(t, summary.FinishedAt.IsZero())
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	src := &stubSource{
		sourceType: domain.SourceTypeArXiv,
		records:    []domain.PaperRecord{record("Quantum Error Correction Codes", 2023, domain.SourceTypeArXiv, 40)},
	}
	scorer := &stubScorer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newTestRunner(t, []papersources.PaperSource{src}, scorer, nil)
	summary, err := runner.Run(ctx, validRunConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunStateFailed, summary.State)
}

func TestRunUnmatchedEvaluationAccounting(t *testing.T) {
	t.Parallel()

	src := &stubSource{
		sourceType: domain.SourceTypeSemanticScholar,
		records:    []domain.PaperRecord{record("Reinforcement Learning for Robotics", 2022, domain.SourceTypeSemanticScholar, 200)},
	}
	scorer := &stubScorer{
		result: &llm.CriticResult{
			Evaluations: []domain.Evaluation{
				{Title: "Reinforcement Learning for Robotics", Relevance: 4, Methodology: 3, Impact: 5, Action: domain.ActionInclude},
				{Title: "A Paper Nobody Collected", Relevance: 2, Methodology: 2, Impact: 2, Action: domain.ActionExclude},
			},
			Dropped: 1,
			Model:   "stub-model",
		},
	}
	htmlGen := &stubGenerator{kind: domain.ReportKindHTML}

	runner := newTestRunner(t, []papersources.PaperSource{src}, scorer, []report.Generator{htmlGen})
	summary, err := runner.Run(context.Background(), validRunConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Evaluated)
	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, 1, summary.Malformed)

	// Combined score of (4, 3, 5) with equal weights is exactly 4.0.
	require.Len(t, htmlGen.lastInput.Papers, 1)
	assert.InDelta(t, 4.0, htmlGen.lastInput.Papers[0].Combined, 1e-9)
}

func TestRunConfigValidate(t *testing.T) {
	t.Parallel()

	valid := RunConfig{Subject: "immunology", StartYear: 2020, EndYear: 2024, PerSourceCount: 7}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"blank subject", func(rc *RunConfig) { rc.Subject = "" }},
		{"whitespace subject", func(rc *RunConfig) { rc.Subject = "   " }},
		{"inverted years", func(rc *RunConfig) { rc.StartYear = 2025 }},
		{"zero per source count", func(rc *RunConfig) { rc.PerSourceCount = 0 }},
		{"per source count above cap", func(rc *RunConfig) { rc.PerSourceCount = MaxPerSourceCount + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := valid
			tt.mutate(&rc)
			err := rc.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
		})
	}
}

func TestRunAssignsAndKeepsRunID(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(t, nil, &stubScorer{}, nil)

	rc := validRunConfig()
	rc.RunID = "run-fixed"
	summary, err := runner.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", summary.RunID)

	summary2, err := runner.Run(context.Background(), validRunConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, summary2.RunID)
	assert.NotEqual(t, summary.RunID, summary2.RunID)
}

func TestRunRecordsOracleMetrics(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("litpipeline_pipeline_oracle_ok_test")
	src := &stubSource{
		sourceType: domain.SourceTypeArXiv,
		records:    []domain.PaperRecord{record("Oracle Instrumented Paper", 2022, domain.SourceTypeArXiv, 3)},
	}
	scorer := &stubScorer{}
	htmlGen := &stubGenerator{kind: domain.ReportKindHTML}

	registry := papersources.NewRegistry()
	registry.Register(src)
	runner := NewRunner(Config{}, Deps{
		Registry:   registry,
		Scorer:     scorer,
		Generators: []report.Generator{htmlGen},
		Metrics:    metrics,
		Logger:     zerolog.Nop(),
	})

	summary, err := runner.Run(context.Background(), validRunConfig())
	require.NoError(t, err)
	require.Equal(t, domain.RunStateDone, summary.State)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.OracleRequestsTotal.WithLabelValues("stub", "stub-model")), 1e-9)
	assert.InDelta(t, 120, testutil.ToFloat64(metrics.OracleTokensUsed.WithLabelValues("stub-model", "input")), 1e-9)
	assert.InDelta(t, 40, testutil.ToFloat64(metrics.OracleTokensUsed.WithLabelValues("stub-model", "output")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.OracleRequestsFailed.WithLabelValues("stub", "stub-model", "request")), 1e-9)
}

func TestRunRecordsOracleFailureMetric(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("litpipeline_pipeline_oracle_fail_test")
	src := &stubSource{
		sourceType: domain.SourceTypeArXiv,
		records:    []domain.PaperRecord{record("Oracle Failure Paper", 2022, domain.SourceTypeArXiv, 3)},
	}
	scorer := &stubScorer{err: errors.New("oracle down")}

	registry := papersources.NewRegistry()
	registry.Register(src)
	runner := NewRunner(Config{}, Deps{
		Registry: registry,
		Scorer:   scorer,
		Metrics:  metrics,
		Logger:   zerolog.Nop(),
	})

	summary, err := runner.Run(context.Background(), validRunConfig())
	require.Error(t, err)
	assert.Equal(t, domain.RunStateFailed, summary.State)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.OracleRequestsFailed.WithLabelValues("stub", "stub-model", "request")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.OracleRequestsTotal.WithLabelValues("stub", "stub-model")), 1e-9)
}
