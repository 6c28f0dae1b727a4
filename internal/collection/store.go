// Package collection implements the process-wide working set of paper records
// for a single pipeline run: ordered insertion, deduplication, evaluation
// binding, and ranked views.
package collection

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/questscholar/litpipeline/internal/dedup"
	"github.com/questscholar/litpipeline/internal/domain"
)

const (
	// snapshotAbstractWords caps abstract length in evaluation snapshots.
	snapshotAbstractWords = 150

	// snapshotAuthorCount caps the author list in evaluation snapshots.
	snapshotAuthorCount = 3

	// highRatedThreshold is the combined score at or above which a paper
	// counts as high-rated in collection statistics.
	highRatedThreshold = 4.0
)

// entry pairs a record with its insertion index and, once scoring has run,
// its evaluation.
type entry struct {
	record domain.PaperRecord
	eval   *domain.Evaluation
	index  int
}

// Config holds the Store's tunables.
type Config struct {
	// Matcher is the shared identity resolution rule. Required.
	Matcher *dedup.Matcher
	// Weights fixes the combined score formula. Zero value falls back to
	// equal weights.
	Weights domain.ScoreWeights
	// Logger receives per-decision dedup and binding logs.
	Logger zerolog.Logger
}

// Store is the collection store. All mutating operations are guarded by a
// single mutex so concurrent producers cannot interleave corruptingly.
// A Store is created empty at the start of a run and discarded at run end.
type Store struct {
	mu      sync.Mutex
	matcher *dedup.Matcher
	weights domain.ScoreWeights
	logger  zerolog.Logger
	entries []*entry
	nextIdx int
}

// NewStore creates an empty Store.
func NewStore(cfg Config) *Store {
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = dedup.NewMatcher(dedup.DefaultSimilarityThreshold)
	}
	weights := cfg.Weights
	if weights.Sum() <= 0 {
		weights = domain.DefaultScoreWeights
	}
	return &Store{
		matcher: matcher,
		weights: weights,
		logger:  cfg.Logger.With().Str("component", "collection").Logger(),
	}
}

// Add appends records that are not already present, judged by exact
// normalized-title match against the current contents. Records failing the
// PaperRecord invariant are rejected. Add never removes existing records.
// Safe for concurrent callers. Returns the number of records newly added.
func (s *Store) Add(records []domain.PaperRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.entries))
	for _, e := range s.entries {
		seen[dedup.NormalizeTitle(e.record.Title)] = struct{}{}
	}

	added := 0
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			s.logger.Debug().Err(err).Str("title", rec.Title).Msg("rejecting invalid record")
			continue
		}
		norm := dedup.NormalizeTitle(rec.Title)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		s.entries = append(s.entries, &entry{record: rec, index: s.nextIdx})
		s.nextIdx++
		added++
	}
	return added
}

// Deduplicate removes records judged duplicates of an earlier record, keeping
// the earliest insertion. Two records are duplicates when their normalized
// titles match exactly, or when title similarity reaches the threshold and
// publication years are within one year of each other. Idempotent: a second
// call removes nothing.
func (s *Store) Deduplicate() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	survivors := make([]*entry, 0, len(s.entries))
	removed := 0

	for _, cand := range s.entries {
		dup := false
		for _, kept := range survivors {
			if s.matcher.SameRecord(kept.record.Title, kept.record.Year, cand.record.Title, cand.record.Year) {
				s.logger.Debug().
					Str("kept", kept.record.Title).
					Str("removed", cand.record.Title).
					Str("kept_source", string(kept.record.Source)).
					Str("removed_source", string(cand.record.Source)).
					Msg("duplicate record removed")
				dup = true
				break
			}
		}
		if dup {
			removed++
			continue
		}
		survivors = append(survivors, cand)
	}

	s.entries = survivors
	return removed
}

// PaperSummary is the per-record external representation handed to the
// scoring oracle. It carries no evaluation fields.
type PaperSummary struct {
	Index         int      `json:"index"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Year          int      `json:"year"`
	Venue         string   `json:"venue,omitempty"`
	Source        string   `json:"source"`
	CitationCount *int     `json:"citation_count,omitempty"`
	Abstract      string   `json:"abstract,omitempty"`
}

// SnapshotForEvaluation produces a stable, order-preserving serialization of
// the current records for the scoring oracle. Abstracts are truncated to 150
// words and author lists to the first three entries.
func (s *Store) SnapshotForEvaluation() []PaperSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PaperSummary, 0, len(s.entries))
	for i, e := range s.entries {
		out = append(out, PaperSummary{
			Index:         i + 1,
			Title:         e.record.Title,
			Authors:       e.record.FirstAuthors(snapshotAuthorCount),
			Year:          e.record.Year,
			Venue:         e.record.Venue,
			Source:        string(e.record.Source),
			CitationCount: e.record.CitationCount,
			Abstract:      truncateWords(e.record.AbstractText(), snapshotAbstractWords),
		})
	}
	return out
}

// ApplyEvaluations binds incoming evaluations to records by title, using the
// same identity resolution rule as Deduplicate: exact normalized match first,
// then the most similar record at or above the similarity threshold. A match
// overwrites any existing evaluation. Unmatched evaluations are counted and
// never create records.
func (s *Store) ApplyEvaluations(evals []domain.Evaluation) (applied, unmatched int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byNorm := make(map[string]*entry, len(s.entries))
	for _, e := range s.entries {
		byNorm[dedup.NormalizeTitle(e.record.Title)] = e
	}

	for _, ev := range evals {
		ev := ev.Clamp()
		target := byNorm[dedup.NormalizeTitle(ev.Title)]
		if target == nil {
			target = s.bestFuzzyMatch(ev.Title)
		}
		if target == nil {
			s.logger.Warn().Str("title", ev.Title).Msg("evaluation does not match any collected record")
			unmatched++
			continue
		}
		target.eval = &ev
		applied++
	}
	return applied, unmatched
}

// bestFuzzyMatch returns the entry whose title the matcher resolves to the
// incoming one, or nil when no candidate reaches the threshold. Caller holds
// the lock.
func (s *Store) bestFuzzyMatch(title string) *entry {
	titles := make([]string, len(s.entries))
	for i, e := range s.entries {
		titles[i] = e.record.Title
	}
	idx, ok := s.matcher.BestTitleMatch(title, titles)
	if !ok {
		return nil
	}
	return s.entries[idx]
}

// RankedPaper is one row of a ranked view.
type RankedPaper struct {
	Record     domain.PaperRecord
	Evaluation *domain.Evaluation
	// Combined is the derived ranking score; zero when the record has no
	// evaluation (Evaluated distinguishes the two cases).
	Combined  float64
	Evaluated bool
}

// RankedView returns the collection sorted by combined score descending.
// Ties break by citation count descending, then insertion order. Records
// without an evaluation sort after all evaluated records, in insertion order.
// When minCombined is non-nil, records below it (and unevaluated records) are
// omitted from the view; they remain in the store.
func (s *Store) RankedView(minCombined *float64) []RankedPaper {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		rp    RankedPaper
		index int
	}
	rows := make([]row, 0, len(s.entries))
	for _, e := range s.entries {
		rp := RankedPaper{Record: e.record}
		if e.eval != nil {
			ev := *e.eval
			rp.Evaluation = &ev
			rp.Combined = ev.CombinedScore(s.weights)
			rp.Evaluated = true
		}
		if minCombined != nil && (!rp.Evaluated || rp.Combined < *minCombined) {
			continue
		}
		rows = append(rows, row{rp: rp, index: e.index})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.rp.Evaluated != b.rp.Evaluated {
			return a.rp.Evaluated
		}
		if !a.rp.Evaluated {
			return a.index < b.index
		}
		if a.rp.Combined != b.rp.Combined {
			return a.rp.Combined > b.rp.Combined
		}
		if ca, cb := a.rp.Record.Citations(), b.rp.Record.Citations(); ca != cb {
			return ca > cb
		}
		return a.index < b.index
	})

	out := make([]RankedPaper, len(rows))
	for i, r := range rows {
		out[i] = r.rp
	}
	return out
}

// Len returns the number of records currently in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats summarizes the collection for reports and the run summary.
type Stats struct {
	Total          int     `json:"total"`
	Evaluated      int     `json:"evaluated"`
	HighRated      int     `json:"high_rated"`
	Excluded       int     `json:"excluded"`
	AvgRelevance   float64 `json:"avg_relevance"`
	AvgMethodology float64 `json:"avg_methodology"`
	AvgImpact      float64 `json:"avg_impact"`
}

// Stats computes collection statistics over evaluated records.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Total: len(s.entries)}
	var sumRel, sumMeth, sumImp float64
	for _, e := range s.entries {
		if e.eval == nil {
			continue
		}
		st.Evaluated++
		sumRel += e.eval.Relevance
		sumMeth += e.eval.Methodology
		sumImp += e.eval.Impact
		if e.eval.CombinedScore(s.weights) >= highRatedThreshold {
			st.HighRated++
		}
		if e.eval.Action == domain.ActionExclude {
			st.Excluded++
		}
	}
	if st.Evaluated > 0 {
		n := float64(st.Evaluated)
		st.AvgRelevance = sumRel / n
		st.AvgMethodology = sumMeth / n
		st.AvgImpact = sumImp / n
	}
	return st
}

// Weights returns the configured score weighting.
func (s *Store) Weights() domain.ScoreWeights {
	return s.weights
}

// truncateWords limits s to at most n whitespace-separated words.
func truncateWords(s string, n int) string {
	if s == "" {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}
