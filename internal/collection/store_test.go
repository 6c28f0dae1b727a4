package collection

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questscholar/litpipeline/internal/dedup"
	"github.com/questscholar/litpipeline/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(Config{
		Matcher: dedup.NewMatcher(0.9),
		Weights: domain.DefaultScoreWeights,
		Logger:  zerolog.Nop(),
	})
}

func record(title string, year int, source domain.SourceType) domain.PaperRecord {
	return domain.PaperRecord{Title: title, Year: year, Source: source}
}

func recordWithCitations(title string, year, citations int) domain.PaperRecord {
	return domain.PaperRecord{Title: title, Year: year, CitationCount: &citations}
}

func TestStoreAdd(t *testing.T) {
	t.Parallel()

	t.Run("adds valid records", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		added := s.Add([]domain.PaperRecord{
			record("Paper One", 2022, domain.SourceTypeArXiv),
			record("Paper Two", 2023, domain.SourceTypeArXiv),
		})
		assert.Equal(t, 2, added)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("rejects records without title or year", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		added := s.Add([]domain.PaperRecord{
			{Title: "", Year: 2022},
			{Title: "No Year Paper"},
			{Title: "Valid Paper", Year: 2022},
		})
		assert.Equal(t, 1, added)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("skips exact normalized duplicates", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{record("Deep Learning for X", 2022, domain.SourceTypeSemanticScholar)})
		added := s.Add([]domain.PaperRecord{record("deep learning for x!", 2022, domain.SourceTypePubMed)})
		assert.Equal(t, 0, added)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("additive only", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{record("A", 2020, domain.SourceTypeArXiv)})
		before := s.Len()
		s.Add([]domain.PaperRecord{record("B", 2021, domain.SourceTypeArXiv)})
		assert.GreaterOrEqual(t, s.Len(), before)
	})

	t.Run("safe under concurrent producers", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				recs := make([]domain.PaperRecord, 0, 25)
				for i := 0; i < 25; i++ {
					recs = append(recs, record(fmt.Sprintf("Producer %d Paper %d", g, i), 2020+i%5, domain.SourceTypeOpenAlex))
				}
				s.Add(recs)
			}(g)
		}
		wg.Wait()
		assert.Equal(t, 100, s.Len())
	})
}

func TestStoreDeduplicate(t *testing.T) {
	t.Parallel()

	t.Run("keeps earliest insertion on exact match after fuzzy year drift", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{record("A Survey of Deep Learning Methods for Early Cancer Detection", 2022, domain.SourceTypeSemanticScholar)})
		s.Add([]domain.PaperRecord{record("A Survey of Deep Learning Methods for Early Cancer Detection in 2023", 2023, domain.SourceTypePubMed)})

		removed := s.Deduplicate()
		require.Equal(t, 1, removed)

		view := s.RankedView(nil)
		require.Len(t, view, 1)
		assert.Equal(t, domain.SourceTypeSemanticScholar, view[0].Record.Source)
	})

	t.Run("tie break keeps first source", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{record("A Survey of Deep Learning Methods for Early Cancer Detection in Radiology", 2022, domain.SourceTypeSemanticScholar)})
		s.Add([]domain.PaperRecord{record("Survey of Deep Learning Methods for Early Cancer Detection in Radiology", 2022, domain.SourceTypePubMed)})
		require.Equal(t, 2, s.Len())

		require.Equal(t, 1, s.Deduplicate())
		view := s.RankedView(nil)
		require.Len(t, view, 1)
		assert.Equal(t, domain.SourceTypeSemanticScholar, view[0].Record.Source)
	})

	t.Run("fuzzy match outside year tolerance survives", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			record("A Survey of Deep Learning Methods for Early Cancer Detection in Radiology", 2018, domain.SourceTypeArXiv),
			record("Survey of Deep Learning Methods for Early Cancer Detection in Radiology", 2022, domain.SourceTypeOpenAlex),
		})
		assert.Equal(t, 0, s.Deduplicate())
		assert.Equal(t, 2, s.Len())
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			record("Paper Alpha Study of Things", 2020, domain.SourceTypeSemanticScholar),
			record("Paper Alpha Study of Things extended", 2020, domain.SourceTypePubMed),
			record("Completely Different Work", 2021, domain.SourceTypeArXiv),
		})

		first := s.Deduplicate()
		survivors := s.RankedView(nil)
		second := s.Deduplicate()

		assert.Equal(t, 0, second)
		assert.Equal(t, survivors, s.RankedView(nil))
		assert.GreaterOrEqual(t, first, 0)
	})
}

func TestSnapshotForEvaluation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	longAbstract := ""
	for i := 0; i < 200; i++ {
		longAbstract += fmt.Sprintf("word%d ", i)
	}
	abs := longAbstract
	s.Add([]domain.PaperRecord{
		{
			Title:    "First Paper",
			Year:     2021,
			Source:   domain.SourceTypeSemanticScholar,
			Authors:  []string{"A", "B", "C", "D"},
			Abstract: &abs,
		},
		record("Second Paper", 2022, domain.SourceTypePubMed),
	})

	snap := s.SnapshotForEvaluation()
	require.Len(t, snap, 2)

	assert.Equal(t, 1, snap[0].Index)
	assert.Equal(t, "First Paper", snap[0].Title)
	assert.Len(t, snap[0].Authors, 3)
	assert.LessOrEqual(t, len(splitWords(snap[0].Abstract)), 151)
	assert.Equal(t, "Second Paper", snap[1].Title)

	// Order is stable across calls.
	assert.Equal(t, snap, s.SnapshotForEvaluation())
}

func splitWords(s string) []string {
	out := []string{}
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func TestApplyEvaluations(t *testing.T) {
	t.Parallel()

	t.Run("applies by exact and fuzzy title", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			record("Deep Learning for X", 2022, domain.SourceTypeSemanticScholar),
			record("A Long Survey of Transformer Models in Clinical Text Processing", 2023, domain.SourceTypePubMed),
		})

		applied, unmatched := s.ApplyEvaluations([]domain.Evaluation{
			{Title: "deep learning for x", Relevance: 4, Methodology: 3, Impact: 5, Action: domain.ActionInclude},
			{Title: "A Long Survey of Transformer Models in Clinical Text Processing!", Relevance: 2, Methodology: 2, Impact: 2, Action: domain.ActionExclude},
		})

		assert.Equal(t, 2, applied)
		assert.Equal(t, 0, unmatched)

		view := s.RankedView(nil)
		require.True(t, view[0].Evaluated)
		assert.InDelta(t, 4.0, view[0].Combined, 1e-9)
	})

	t.Run("binds word-level title variant through similarity", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			record("Deep Learning for X", 2022, domain.SourceTypeSemanticScholar),
			record("A Long Survey of Transformer Models in Clinical Radiology and Imaging", 2023, domain.SourceTypePubMed),
		})

		// The incoming title drops a word, so it cannot normalize to an
		// exact match and must resolve through the similarity threshold.
		applied, unmatched := s.ApplyEvaluations([]domain.Evaluation{
			{Title: "A Long Survey of Transformer Models in Clinical Radiology Imaging", Relevance: 3, Methodology: 4, Impact: 2, Action: domain.ActionInclude},
		})

		assert.Equal(t, 1, applied)
		assert.Equal(t, 0, unmatched)

		view := s.RankedView(nil)
		require.True(t, view[0].Evaluated)
		assert.Equal(t, "A Long Survey of Transformer Models in Clinical Radiology and Imaging", view[0].Record.Title)
		assert.InDelta(t, 3.0, view[0].Combined, 1e-9)
	})

	t.Run("unmatched counted and never creates records", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{record("Known Paper", 2022, domain.SourceTypeArXiv)})

		applied, unmatched := s.ApplyEvaluations([]domain.Evaluation{
			{Title: "A Paper Nobody Collected", Relevance: 5, Methodology: 5, Impact: 5},
		})

		assert.Equal(t, 0, applied)
		assert.Equal(t, 1, unmatched)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("re-evaluation overwrites", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{record("Known Paper", 2022, domain.SourceTypeArXiv)})

		s.ApplyEvaluations([]domain.Evaluation{{Title: "Known Paper", Relevance: 1, Methodology: 1, Impact: 1}})
		s.ApplyEvaluations([]domain.Evaluation{{Title: "Known Paper", Relevance: 5, Methodology: 5, Impact: 5}})

		view := s.RankedView(nil)
		require.Len(t, view, 1)
		assert.InDelta(t, 5.0, view[0].Combined, 1e-9)
	})

	t.Run("clamps out of range scores", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{record("Known Paper", 2022, domain.SourceTypeArXiv)})

		s.ApplyEvaluations([]domain.Evaluation{{Title: "Known Paper", Relevance: 7, Methodology: -1, Impact: 5}})

		view := s.RankedView(nil)
		require.NotNil(t, view[0].Evaluation)
		assert.Equal(t, 5.0, view[0].Evaluation.Relevance)
		assert.Equal(t, 0.0, view[0].Evaluation.Methodology)
	})
}

func TestRankedView(t *testing.T) {
	t.Parallel()

	t.Run("sorts by combined score descending", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			record("Low", 2020, domain.SourceTypeArXiv),
			record("High", 2021, domain.SourceTypeArXiv),
		})
		s.ApplyEvaluations([]domain.Evaluation{
			{Title: "Low", Relevance: 1, Methodology: 1, Impact: 1},
			{Title: "High", Relevance: 5, Methodology: 5, Impact: 5},
		})

		view := s.RankedView(nil)
		require.Len(t, view, 2)
		assert.Equal(t, "High", view[0].Record.Title)
		assert.Equal(t, "Low", view[1].Record.Title)
	})

	t.Run("ties break by citations then insertion order", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			recordWithCitations("First Inserted", 2020, 10),
			recordWithCitations("Most Cited", 2020, 99),
			recordWithCitations("Same As First", 2020, 10),
		})
		same := domain.Evaluation{Relevance: 4, Methodology: 4, Impact: 4}
		for _, title := range []string{"First Inserted", "Most Cited", "Same As First"} {
			ev := same
			ev.Title = title
			s.ApplyEvaluations([]domain.Evaluation{ev})
		}

		for i := 0; i < 5; i++ {
			view := s.RankedView(nil)
			require.Len(t, view, 3)
			assert.Equal(t, "Most Cited", view[0].Record.Title)
			assert.Equal(t, "First Inserted", view[1].Record.Title)
			assert.Equal(t, "Same As First", view[2].Record.Title)
		}
	})

	t.Run("unevaluated records sort last", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			record("Unevaluated", 2020, domain.SourceTypeArXiv),
			record("Evaluated", 2021, domain.SourceTypeArXiv),
		})
		s.ApplyEvaluations([]domain.Evaluation{{Title: "Evaluated", Relevance: 1, Methodology: 1, Impact: 1}})

		view := s.RankedView(nil)
		assert.Equal(t, "Evaluated", view[0].Record.Title)
		assert.Equal(t, "Unevaluated", view[1].Record.Title)
	})

	t.Run("unevaluated records keep insertion order regardless of citations", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			recordWithCitations("First Unevaluated", 2020, 5),
			recordWithCitations("Second Unevaluated", 2021, 50),
		})

		view := s.RankedView(nil)
		require.Len(t, view, 2)
		assert.Equal(t, "First Unevaluated", view[0].Record.Title)
		assert.Equal(t, "Second Unevaluated", view[1].Record.Title)
	})

	t.Run("minimum score filters view but not store", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		s.Add([]domain.PaperRecord{
			record("Strong", 2020, domain.SourceTypeArXiv),
			record("Weak", 2021, domain.SourceTypeArXiv),
		})
		s.ApplyEvaluations([]domain.Evaluation{
			{Title: "Strong", Relevance: 5, Methodology: 5, Impact: 5},
			{Title: "Weak", Relevance: 1, Methodology: 1, Impact: 1},
		})

		min := 3.0
		view := s.RankedView(&min)
		require.Len(t, view, 1)
		assert.Equal(t, "Strong", view[0].Record.Title)
		assert.Equal(t, 2, s.Len())
	})
}

func TestStoreStats(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.Add([]domain.PaperRecord{
		record("A", 2020, domain.SourceTypeArXiv),
		record("B", 2021, domain.SourceTypeArXiv),
		record("C", 2022, domain.SourceTypeArXiv),
	})
	s.ApplyEvaluations([]domain.Evaluation{
		{Title: "A", Relevance: 5, Methodology: 4, Impact: 5, Action: domain.ActionInclude},
		{Title: "B", Relevance: 1, Methodology: 1, Impact: 1, Action: domain.ActionExclude},
	})

	st := s.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Evaluated)
	assert.Equal(t, 1, st.HighRated)
	assert.Equal(t, 1, st.Excluded)
	assert.InDelta(t, 3.0, st.AvgRelevance, 1e-9)
	assert.InDelta(t, 2.5, st.AvgMethodology, 1e-9)
	assert.InDelta(t, 3.0, st.AvgImpact, 1e-9)
}

func TestStoreStatsEmpty(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	st := s.Stats()
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, 0.0, st.AvgRelevance)
}
