// Package report renders the finalized, ranked paper collection into
// deliverable artifacts. Two generators share the same input: an HTML
// generator backed by html/template and a PDF generator backed by fpdf.
// Both consume a read-only ranked view plus a caller-supplied executive
// summary; neither mutates the collection.
package report

import (
	"context"
	"time"

	"github.com/questscholar/litpipeline/internal/collection"
	"github.com/questscholar/litpipeline/internal/domain"
)

// Quality tier boundaries on the combined score.
const (
	tierEssentialMin = 4.5
	tierStrongMin    = 4.0
	tierRelevantMin  = 3.5
)

// Tier labels used as section headings.
const (
	TierEssential = "Essential Reading"
	TierStrong    = "Highly Relevant"
	TierRelevant  = "Relevant"
	TierMarginal  = "Marginal"
	TierUnscored  = "Not Evaluated"
)

// Input is everything a generator needs to render one report.
type Input struct {
	// Subject is the review subject the run was launched with.
	Subject string

	// ExecutiveSummary is caller-supplied prose placed at the top of the report.
	ExecutiveSummary string

	// Papers is the full ranked view, including excluded and unevaluated
	// records. Generators split it into the main body and the appendix.
	Papers []collection.RankedPaper

	// Stats summarizes the collection.
	Stats collection.Stats

	// GeneratedAt is the report timestamp.
	GeneratedAt time.Time
}

// Artifact references one generated report file.
type Artifact struct {
	Kind      domain.ReportKind
	Path      string
	SizeBytes int64
}

// Generator renders one report kind from the shared input.
type Generator interface {
	// Kind identifies the artifact this generator produces.
	Kind() domain.ReportKind

	// Generate renders the report and returns a reference to the artifact.
	Generate(ctx context.Context, in Input) (*Artifact, error)
}

// TierLabel maps a combined score to its quality tier heading.
func TierLabel(combined float64) string {
	switch {
	case combined >= tierEssentialMin:
		return TierEssential
	case combined >= tierStrongMin:
		return TierStrong
	case combined >= tierRelevantMin:
		return TierRelevant
	default:
		return TierMarginal
	}
}

// Section groups ranked papers under one tier heading, preserving rank order.
type Section struct {
	Title  string
	Papers []collection.RankedPaper
}

// SplitPapers partitions the ranked view into tiered body sections and the
// excluded appendix. Papers the oracle recommended excluding go to the
// appendix; unevaluated papers form their own trailing section.
func SplitPapers(papers []collection.RankedPaper) (sections []Section, excluded []collection.RankedPaper) {
	byTier := make(map[string][]collection.RankedPaper)
	for _, p := range papers {
		if p.Evaluated && p.Evaluation.Action == domain.ActionExclude {
			excluded = append(excluded, p)
			continue
		}
		label := TierUnscored
		if p.Evaluated {
			label = TierLabel(p.Combined)
		}
		byTier[label] = append(byTier[label], p)
	}

	for _, label := range []string{TierEssential, TierStrong, TierRelevant, TierMarginal, TierUnscored} {
		if ps := byTier[label]; len(ps) > 0 {
			sections = append(sections, Section{Title: label, Papers: ps})
		}
	}
	return sections, excluded
}
