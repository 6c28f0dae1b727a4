package domain

import (
	"strings"
)

// PaperRecord is the canonical in-memory representation of a retrieved paper.
// Title is the primary identity used for deduplication and evaluation binding;
// DOI and ArXivID are kept when the source provides them but are informational.
type PaperRecord struct {
	Title         string
	DOI           string
	ArXivID       string
	Source        SourceType
	Authors       []string
	Year          int
	Venue         string
	Abstract      *string
	CitationCount *int
	// Raw holds source-specific fields retained for report rendering.
	Raw map[string]interface{}
}

// Validate checks the record invariant: a non-empty title after trimming
// and a publication year must both be present before the record may enter
// the collection.
func (p *PaperRecord) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return NewValidationError("title", "must be non-empty")
	}
	if p.Year == 0 {
		return NewValidationError("year", "must be set")
	}
	return nil
}

// AbstractText returns the abstract or an empty string when none was provided.
func (p *PaperRecord) AbstractText() string {
	if p.Abstract == nil {
		return ""
	}
	return *p.Abstract
}

// Citations returns the citation count, or -1 when the source did not report
// one. The -1 convention keeps nil counts sorting below zero-citation papers.
func (p *PaperRecord) Citations() int {
	if p.CitationCount == nil {
		return -1
	}
	return *p.CitationCount
}

// FirstAuthors returns up to n leading authors.
func (p *PaperRecord) FirstAuthors(n int) []string {
	if len(p.Authors) <= n {
		return p.Authors
	}
	return p.Authors[:n]
}
