// Package domain provides the core data model for the literature review pipeline.
package domain

// RunState represents the lifecycle states of a pipeline run. Transitions are
// one-directional within a run; no state is revisited.
type RunState string

const (
	RunStateIdle        RunState = "idle"
	RunStateSearching   RunState = "searching"
	RunStateAggregating RunState = "aggregating"
	RunStateScoring     RunState = "scoring"
	RunStateReportReady RunState = "report_ready"
	RunStateDone        RunState = "done"
	RunStateFailed      RunState = "failed"
)

// IsTerminal returns true if the state is final and will not change.
func (s RunState) IsTerminal() bool {
	return s == RunStateDone || s == RunStateFailed
}

// next maps each state to its single forward successor.
var next = map[RunState]RunState{
	RunStateIdle:        RunStateSearching,
	RunStateSearching:   RunStateAggregating,
	RunStateAggregating: RunStateScoring,
	RunStateScoring:     RunStateReportReady,
	RunStateReportReady: RunStateDone,
}

// CanTransition reports whether moving from s to target is legal: either the
// single forward step, or entering Failed from any non-terminal state.
func (s RunState) CanTransition(target RunState) bool {
	if target == RunStateFailed {
		return !s.IsTerminal()
	}
	return next[s] == target
}

// SourceType identifies the external provider a record came from.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeOpenAlex        SourceType = "openalex"
)

// SearchLaunchOrder is the fixed order sources are launched in during the
// search phase. Aggregation merges results in this order regardless of
// completion order, so insertion indexes are deterministic.
var SearchLaunchOrder = []SourceType{
	SourceTypeSemanticScholar,
	SourceTypePubMed,
	SourceTypeArXiv,
	SourceTypeOpenAlex,
}

// ReportKind identifies one of the two report generators.
type ReportKind string

const (
	ReportKindPDF  ReportKind = "pdf"
	ReportKindHTML ReportKind = "html"
)
