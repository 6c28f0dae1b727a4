// Package papersources provides the source adapter contract and shared HTTP
// plumbing for the scholarly providers queried during the search phase.
//
// Each provider (Semantic Scholar, PubMed, arXiv, OpenAlex) implements the
// PaperSource interface, allowing the pipeline to fan out one query to all
// sources concurrently with a unified API.
//
// Example usage:
//
//	source := semanticscholar.New(cfg, httpClient)
//	params := papersources.SearchParams{
//		Subject:   "CRISPR gene editing",
//		StartYear: 2020,
//		EndYear:   2024,
//		MaxCount:  7,
//	}
//	result, err := source.Search(ctx, params)
package papersources

import (
	"context"
	"time"

	"github.com/questscholar/litpipeline/internal/domain"
)

// SearchParams defines one source query: a subject, an inclusive publication
// year range, and an upper bound on returned records.
type SearchParams struct {
	// Subject is the research subject to search for (required, non-empty).
	// Each source translates it into its own query syntax.
	Subject string

	// StartYear and EndYear bound the publication years, inclusive.
	// StartYear must not exceed EndYear.
	StartYear int
	EndYear   int

	// MaxCount limits the number of records returned. Must be at least 1;
	// sources may cap it further.
	MaxCount int
}

// Validate checks the adapter contract preconditions.
func (p SearchParams) Validate() error {
	if p.Subject == "" {
		return domain.NewValidationError("subject", "must be non-empty")
	}
	if p.StartYear > p.EndYear {
		return domain.NewValidationError("year_range", "start year must not exceed end year")
	}
	if p.MaxCount < 1 {
		return domain.NewValidationError("max_count", "must be at least 1")
	}
	return nil
}

// SearchResult contains the records produced by one source query.
type SearchResult struct {
	// Records contains the normalized records returned by the search.
	// Empty when no papers match; an empty result is not an error.
	Records []domain.PaperRecord

	// TotalResults is the total number of papers matching the query at the
	// source, regardless of MaxCount. May be an estimate.
	TotalResults int

	// Source identifies which provider produced these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search, including
	// network latency and response parsing.
	SearchDuration time.Duration
}

// PaperSource defines the interface that every source adapter implements.
type PaperSource interface {
	// Search queries the provider for papers matching the given parameters
	// and returns at most params.MaxCount valid records. "No results" is an
	// empty Records slice, not an error; a failed query surfaces as a
	// domain.SourceError.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.PaperRecord
	//   - Drop response entries that fail the PaperRecord invariant
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the type identifier for this paper source.
	// Used for attribution and launch ordering.
	SourceType() domain.SourceType

	// Name returns a human-readable name for this paper source.
	// Used for logging, metrics, and display purposes.
	Name() string

	// IsEnabled returns whether this paper source is currently enabled
	// and available for searches. A source may be disabled due to
	// configuration or missing API keys.
	IsEnabled() bool
}
