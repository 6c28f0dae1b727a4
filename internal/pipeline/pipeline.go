// Package pipeline orchestrates a literature review run as a one-directional
// finite state machine: Idle, Searching, Aggregating, Scoring, ReportReady,
// Done, with Failed reachable from any non-terminal state. Fan-out happens
// only inside Searching (source adapters) and ReportReady (report
// generators); aggregation and scoring run on the orchestrator goroutine.
// The orchestrator never retries an operation; retry policy belongs to the
// adapter and oracle HTTP clients.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/questscholar/litpipeline/internal/collection"
	"github.com/questscholar/litpipeline/internal/dedup"
	"github.com/questscholar/litpipeline/internal/domain"
	"github.com/questscholar/litpipeline/internal/llm"
	"github.com/questscholar/litpipeline/internal/observability"
	"github.com/questscholar/litpipeline/internal/papersources"
	"github.com/questscholar/litpipeline/internal/report"
)

const (
	// DefaultSearchTimeout bounds the Searching phase.
	DefaultSearchTimeout = 2 * time.Minute

	// DefaultScoringTimeout bounds the Scoring phase.
	DefaultScoringTimeout = 5 * time.Minute

	// DefaultReportTimeout bounds the ReportReady phase.
	DefaultReportTimeout = 2 * time.Minute

	// DefaultPerSourceCount is the per-source record cap when the run
	// request omits one.
	DefaultPerSourceCount = 7

	// MaxPerSourceCount is the upper bound on the per-source record cap.
	MaxPerSourceCount = 20
)

// Config holds pipeline-level tunables shared by every run.
type Config struct {
	// SearchTimeout bounds the Searching phase. Zero means DefaultSearchTimeout.
	SearchTimeout time.Duration

	// ScoringTimeout bounds the Scoring phase. Zero means DefaultScoringTimeout.
	ScoringTimeout time.Duration

	// ReportTimeout bounds the ReportReady phase. Zero means DefaultReportTimeout.
	ReportTimeout time.Duration

	// Weights fixes the combined score formula for every run's collection.
	// Zero value falls back to equal weights.
	Weights domain.ScoreWeights

	// SimilarityThreshold overrides the dedup similarity threshold.
	// Zero means dedup.DefaultSimilarityThreshold.
	SimilarityThreshold float64
}

func (c *Config) applyDefaults() {
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.ScoringTimeout <= 0 {
		c.ScoringTimeout = DefaultScoringTimeout
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = DefaultReportTimeout
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = dedup.DefaultSimilarityThreshold
	}
}

// RunConfig describes one review run.
type RunConfig struct {
	// RunID identifies the run. Empty means a fresh UUID is assigned.
	RunID string

	// Subject is the research subject to review. Required.
	Subject string

	// StartYear and EndYear bound publication years, inclusive.
	StartYear int
	EndYear   int

	// PerSourceCount caps records requested from each source. Zero means
	// DefaultPerSourceCount; values above MaxPerSourceCount are invalid.
	PerSourceCount int

	// ExecutiveSummary is caller-supplied prose placed at the top of reports.
	ExecutiveSummary string
}

// Validate checks the run preconditions. A violation means the run never
// leaves Idle; the returned error unwraps to domain.ErrConfigurationInvalid.
func (rc RunConfig) Validate() error {
	if strings.TrimSpace(rc.Subject) == "" {
		return domain.NewValidationError("subject", "must be non-empty")
	}
	if rc.StartYear > rc.EndYear {
		return domain.NewValidationError("year_range", "start year must not exceed end year")
	}
	if rc.PerSourceCount < 1 || rc.PerSourceCount > MaxPerSourceCount {
		return domain.NewValidationError("per_source_count", "must be between 1 and 20")
	}
	return nil
}

// Scorer is the scoring workflow collaborator. *llm.Critic satisfies it.
type Scorer interface {
	Evaluate(ctx context.Context, subject string, snapshot []collection.PaperSummary) (*llm.CriticResult, error)

	// Provider and Model identify the oracle backend for logging and
	// instrumentation labels.
	Provider() string
	Model() string
}

// Deps collects the collaborators a Runner orchestrates.
type Deps struct {
	// Registry holds the registered paper sources. Required.
	Registry *papersources.Registry

	// Scorer runs the scoring workflow. Required.
	Scorer Scorer

	// Generators are the report generators run during ReportReady.
	Generators []report.Generator

	// Metrics receives run instrumentation. Optional.
	Metrics *observability.Metrics

	// Logger is the base logger.
	Logger zerolog.Logger
}

// Runner executes review runs. A Runner is safe for concurrent use; each run
// gets its own collection store and run summary.
type Runner struct {
	cfg        Config
	registry   *papersources.Registry
	scorer     Scorer
	generators []report.Generator
	matcher    *dedup.Matcher
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewRunner creates a Runner from config and collaborators.
func NewRunner(cfg Config, deps Deps) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:        cfg,
		registry:   deps.Registry,
		scorer:     deps.Scorer,
		generators: deps.Generators,
		matcher:    dedup.NewMatcher(cfg.SimilarityThreshold),
		metrics:    deps.Metrics,
		logger:     deps.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one review run to a terminal state and returns its summary.
// The summary is returned for every outcome, including validation failures
// and cancellation. The returned error is non-nil when the run did not reach
// Done.
func (r *Runner) Run(ctx context.Context, rc RunConfig) (*RunSummary, error) {
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}
	if rc.PerSourceCount == 0 {
		rc.PerSourceCount = DefaultPerSourceCount
	}

	summary := &RunSummary{
		RunID:          rc.RunID,
		Subject:        rc.Subject,
		State:          domain.RunStateIdle,
		PhaseDurations: make(map[string]time.Duration),
		StartedAt:      time.Now(),
	}
	logger := observability.WithRunContext(r.logger, rc.RunID, rc.Subject)

	if err := rc.Validate(); err != nil {
		summary.Error = err.Error()
		summary.FinishedAt = time.Now()
		logger.Error().Err(err).Msg("run configuration invalid")
		return summary, err
	}

	if r.metrics != nil {
		r.metrics.RecordRunStarted()
	}
	logger.Info().
		Int("start_year", rc.StartYear).
		Int("end_year", rc.EndYear).
		Int("per_source_count", rc.PerSourceCount).
		Msg("run started")

	store := collection.NewStore(collection.Config{
		Matcher: r.matcher,
		Weights: r.cfg.Weights,
		Logger:  logger,
	})

	// Searching
	if err := r.transition(summary, domain.RunStateSearching); err != nil {
		return r.fail(summary, logger, err)
	}
	results := r.searchPhase(ctx, rc, summary, logger)
	if err := ctx.Err(); err != nil {
		return r.fail(summary, logger, err)
	}

	// Aggregating
	if err := r.transition(summary, domain.RunStateAggregating); err != nil {
		return r.fail(summary, logger, err)
	}
	r.aggregatePhase(results, store, summary, logger)

	// Scoring
	if err := r.transition(summary, domain.RunStateScoring); err != nil {
		return r.fail(summary, logger, err)
	}
	if err := r.scoringPhase(ctx, rc, store, summary, logger); err != nil {
		return r.fail(summary, logger, err)
	}
	if err := ctx.Err(); err != nil {
		return r.fail(summary, logger, err)
	}

	// ReportReady
	if err := r.transition(summary, domain.RunStateReportReady); err != nil {
		return r.fail(summary, logger, err)
	}
	r.reportPhase(ctx, rc, store, summary, logger)
	if err := ctx.Err(); err != nil {
		return r.fail(summary, logger, err)
	}

	// Done
	if err := r.transition(summary, domain.RunStateDone); err != nil {
		return r.fail(summary, logger, err)
	}
	summary.Stats = store.Stats()
	summary.FinishedAt = time.Now()
	if r.metrics != nil {
		r.metrics.RecordRunCompleted(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
	logger.Info().
		Int("surviving", summary.Surviving).
		Int("evaluated", summary.Evaluated).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("run completed")
	return summary, nil
}

// transition advances the run's FSM state. An illegal transition is a
// programming error and fails the run.
func (r *Runner) transition(summary *RunSummary, target domain.RunState) error {
	if !summary.State.CanTransition(target) {
		return domain.NewValidationError("state", "illegal transition from "+string(summary.State)+" to "+string(target))
	}
	summary.State = target
	return nil
}

// fail moves the run to Failed and finalizes the summary.
func (r *Runner) fail(summary *RunSummary, logger zerolog.Logger, err error) (*RunSummary, error) {
	if summary.State.CanTransition(domain.RunStateFailed) {
		summary.State = domain.RunStateFailed
	}
	summary.Error = err.Error()
	summary.FinishedAt = time.Now()
	if r.metrics != nil {
		if errors.Is(err, context.Canceled) {
			r.metrics.RecordRunCancelled()
		}
		r.metrics.RecordRunFailed(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
	logger.Error().Err(err).Str("state", string(summary.State)).Msg("run failed")
	return summary, err
}

// searchPhase fans out to all enabled sources under the search timeout.
// Failed or timed-out sources surface as errors in their SourceResult and
// contribute zero records; the phase itself never fails.
func (r *Runner) searchPhase(ctx context.Context, rc RunConfig, summary *RunSummary, logger zerolog.Logger) []papersources.SourceResult {
	phaseLogger := observability.WithPhaseContext(logger, PhaseSearching)
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	params := papersources.SearchParams{
		Subject:   rc.Subject,
		StartYear: rc.StartYear,
		EndYear:   rc.EndYear,
		MaxCount:  rc.PerSourceCount,
	}
	if r.metrics != nil {
		for _, src := range r.registry.EnabledSources() {
			r.metrics.RecordSearchStarted(string(src.SourceType()))
		}
	}

	results := r.registry.SearchAll(sctx, params)

	for _, res := range results {
		srcLogger := observability.WithSourceContext(phaseLogger, string(res.Source), rc.Subject)
		if res.Error != nil {
			srcLogger.Warn().Err(res.Error).Msg("source search failed")
			if r.metrics != nil {
				r.metrics.RecordSearchFailed(string(res.Source), 0)
			}
			continue
		}
		srcLogger.Debug().
			Int("records", len(res.Result.Records)).
			Dur("search_duration", res.Result.SearchDuration).
			Msg("source search completed")
		if r.metrics != nil {
			r.metrics.RecordSearchCompleted(string(res.Source), len(res.Result.Records), res.Result.SearchDuration.Seconds())
		}
	}

	r.recordPhase(summary, PhaseSearching, time.Since(start))
	return results
}

// aggregatePhase merges source results into the store in launch order, then
// deduplicates exactly once. When every source failed the run still proceeds
// with an empty collection; the reports state that zero papers were found.
func (r *Runner) aggregatePhase(results []papersources.SourceResult, store *collection.Store, summary *RunSummary, logger zerolog.Logger) {
	phaseLogger := observability.WithPhaseContext(logger, PhaseAggregating)
	start := time.Now()

	failed := 0
	for _, res := range results {
		outcome := SourceOutcome{Source: res.Source}
		if res.Error != nil {
			outcome.Error = res.Error.Error()
			failed++
		} else {
			outcome.Found = len(res.Result.Records)
			outcome.Duration = res.Result.SearchDuration
			outcome.Added = store.Add(res.Result.Records)
			if r.metrics != nil {
				r.metrics.RecordPapersCollected(string(res.Source), outcome.Added)
			}
		}
		summary.Sources = append(summary.Sources, outcome)
	}
	if len(results) > 0 && failed == len(results) {
		phaseLogger.Warn().Err(domain.ErrAllSourcesFailed).Msg("proceeding with empty collection")
	}

	summary.TotalCollected = store.Len()
	summary.DuplicatesRemoved = store.Deduplicate()
	summary.Surviving = store.Len()
	if r.metrics != nil {
		r.metrics.RecordPaperDuplicates(summary.DuplicatesRemoved)
	}
	phaseLogger.Info().
		Int("collected", summary.TotalCollected).
		Int("duplicates_removed", summary.DuplicatesRemoved).
		Int("surviving", summary.Surviving).
		Msg("aggregation completed")

	r.recordPhase(summary, PhaseAggregating, time.Since(start))
}

// scoringPhase runs the two-step scoring workflow: snapshot the collection,
// send it to the oracle, apply the validated evaluations. A fully malformed
// oracle response drops the whole batch and the run continues unevaluated;
// any other oracle failure fails the run.
func (r *Runner) scoringPhase(ctx context.Context, rc RunConfig, store *collection.Store, summary *RunSummary, logger zerolog.Logger) error {
	phaseLogger := observability.WithPhaseContext(logger, PhaseScoring)
	start := time.Now()
	defer func() {
		r.recordPhase(summary, PhaseScoring, time.Since(start))
	}()
	sctx, cancel := context.WithTimeout(ctx, r.cfg.ScoringTimeout)
	defer cancel()

	// Deduplicate is idempotent; re-running it here guarantees the snapshot
	// is taken from a deduplicated collection even if a caller added records
	// after aggregation.
	if removed := store.Deduplicate(); removed > 0 {
		summary.DuplicatesRemoved += removed
		summary.Surviving = store.Len()
	}

	snapshot := store.SnapshotForEvaluation()
	if len(snapshot) == 0 {
		phaseLogger.Info().Msg("empty collection, skipping oracle")
		return nil
	}

	oracleLogger := observability.WithOracleContext(phaseLogger, r.scorer.Provider(), r.scorer.Model())
	oracleStart := time.Now()
	result, err := r.scorer.Evaluate(sctx, rc.Subject, snapshot)
	oracleDuration := time.Since(oracleStart)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordOracleRequestFailed(r.scorer.Provider(), r.scorer.Model(), oracleErrorType(err))
		}
		if errors.Is(err, domain.ErrOracleMalformed) {
			summary.Malformed = len(snapshot)
			if r.metrics != nil {
				r.metrics.RecordEvaluations(0, 0, summary.Malformed)
			}
			oracleLogger.Warn().Err(err).Msg("oracle response unusable, continuing unevaluated")
			return nil
		}
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordOracleRequest(r.scorer.Provider(), result.Model, oracleDuration.Seconds(), result.InputTokens, result.OutputTokens)
	}

	applied, unmatched := store.ApplyEvaluations(result.Evaluations)
	summary.Evaluated = applied
	summary.Unmatched = unmatched
	summary.Malformed = result.Dropped
	if r.metrics != nil {
		r.metrics.RecordEvaluations(applied, unmatched, result.Dropped)
	}
	oracleLogger.Info().
		Int("applied", applied).
		Int("unmatched", unmatched).
		Int("malformed", result.Dropped).
		Msg("scoring completed")
	return nil
}

// oracleErrorType buckets scorer failures for the failure counter label.
func oracleErrorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrOracleMalformed):
		return "malformed"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "request"
	}
}

// reportPhase runs every generator concurrently under the report timeout.
// Generator failures are collected per kind, never propagated; a run with
// failed reports still reaches Done.
func (r *Runner) reportPhase(ctx context.Context, rc RunConfig, store *collection.Store, summary *RunSummary, logger zerolog.Logger) {
	phaseLogger := observability.WithPhaseContext(logger, PhaseReporting)
	start := time.Now()
	defer func() {
		r.recordPhase(summary, PhaseReporting, time.Since(start))
	}()
	if len(r.generators) == 0 {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, r.cfg.ReportTimeout)
	defer cancel()

	input := report.Input{
		Subject:          rc.Subject,
		ExecutiveSummary: rc.ExecutiveSummary,
		Papers:           store.RankedView(nil),
		Stats:            store.Stats(),
		GeneratedAt:      time.Now(),
	}

	outcomes := make([]ReportOutcome, len(r.generators))
	g, genCtx := errgroup.WithContext(gctx)
	for i, gen := range r.generators {
		g.Go(func() error {
			genStart := time.Now()
			artifact, err := gen.Generate(genCtx, input)
			outcome := ReportOutcome{Kind: gen.Kind(), Duration: time.Since(genStart)}
			if err != nil {
				outcome.Error = err.Error()
				phaseLogger.Error().Err(err).Str("kind", string(gen.Kind())).Msg("report generation failed")
				if r.metrics != nil {
					r.metrics.RecordReportFailed(string(gen.Kind()), outcome.Duration.Seconds())
				}
			} else {
				outcome.Path = artifact.Path
				outcome.SizeBytes = artifact.SizeBytes
				phaseLogger.Info().Str("kind", string(gen.Kind())).Str("path", artifact.Path).Msg("report generated")
				if r.metrics != nil {
					r.metrics.RecordReportGenerated(string(gen.Kind()), outcome.Duration.Seconds())
				}
			}
			outcomes[i] = outcome
			// Report failures stay in the outcome; returning them would
			// cancel the sibling generator through the group context.
			return nil
		})
	}
	_ = g.Wait()
	summary.Reports = outcomes
}

func (r *Runner) recordPhase(summary *RunSummary, phase string, d time.Duration) {
	summary.PhaseDurations[phase] = d
	if r.metrics != nil {
		r.metrics.RecordPhaseDuration(phase, d.Seconds())
	}
}
