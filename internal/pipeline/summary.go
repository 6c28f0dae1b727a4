package pipeline

import (
	"time"

	"github.com/questscholar/litpipeline/internal/collection"
	"github.com/questscholar/litpipeline/internal/domain"
)

// Phase names used in the run summary, logs, and metrics labels.
const (
	PhaseSearching   = "searching"
	PhaseAggregating = "aggregating"
	PhaseScoring     = "scoring"
	PhaseReporting   = "reporting"
)

// SourceOutcome records what one paper source contributed to a run.
type SourceOutcome struct {
	// Source identifies the paper source.
	Source domain.SourceType `json:"source"`

	// Found is the number of records the source returned.
	Found int `json:"found"`

	// Added is the number of those records newly added to the collection.
	Added int `json:"added"`

	// Duration is how long the search took.
	Duration time.Duration `json:"duration"`

	// Error holds the failure message when the search failed. A failed
	// source contributes zero records; the run continues without it.
	Error string `json:"error,omitempty"`
}

// ReportOutcome records the result of one report generator.
type ReportOutcome struct {
	// Kind identifies the report generator.
	Kind domain.ReportKind `json:"kind"`

	// Path is the generated artifact path on success.
	Path string `json:"path,omitempty"`

	// SizeBytes is the artifact size on success.
	SizeBytes int64 `json:"size_bytes,omitempty"`

	// Duration is how long generation took.
	Duration time.Duration `json:"duration"`

	// Error holds the failure message when generation failed. Report
	// failures are independent; one failing kind never blocks the other.
	Error string `json:"error,omitempty"`
}

// RunSummary is the structured account of a pipeline run. It is returned for
// every run, successful or not, so callers never have to reconstruct what
// happened from logs.
type RunSummary struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Subject is the review subject the run was launched with.
	Subject string `json:"subject"`

	// State is the final FSM state of the run.
	State domain.RunState `json:"state"`

	// Sources holds one outcome per launched source, in launch order.
	Sources []SourceOutcome `json:"sources"`

	// TotalCollected is the number of records in the collection after
	// aggregation, before deduplication.
	TotalCollected int `json:"total_collected"`

	// DuplicatesRemoved is the number of records removed by deduplication.
	DuplicatesRemoved int `json:"duplicates_removed"`

	// Surviving is the collection size after deduplication.
	Surviving int `json:"surviving"`

	// Evaluated is the number of oracle evaluations applied to records.
	Evaluated int `json:"evaluated"`

	// Unmatched is the number of oracle evaluations that matched no record.
	Unmatched int `json:"unmatched"`

	// Malformed is the number of oracle entries dropped as malformed.
	Malformed int `json:"malformed"`

	// Reports holds one outcome per report generator.
	Reports []ReportOutcome `json:"reports"`

	// Stats summarizes the final collection.
	Stats collection.Stats `json:"stats"`

	// PhaseDurations records how long each phase ran, keyed by phase name.
	PhaseDurations map[string]time.Duration `json:"phase_durations"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Error holds the failure message when State is Failed.
	Error string `json:"error,omitempty"`
}
