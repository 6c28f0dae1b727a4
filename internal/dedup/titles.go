// Package dedup provides the paper identity resolution rule shared by
// collection deduplication and evaluation binding: title normalization plus
// fuzzy title similarity.
package dedup

import (
	"strings"
	"unicode"
)

// DefaultSimilarityThreshold is the default minimum title similarity for two
// records to be judged the same paper.
const DefaultSimilarityThreshold = 0.90

// DefaultYearTolerance is the maximum publication year difference allowed for
// a fuzzy title match during deduplication.
const DefaultYearTolerance = 1

// Matcher applies the identity resolution rule with a fixed threshold.
// Deduplicate and evaluation binding must share one Matcher so the two call
// sites cannot drift apart.
type Matcher struct {
	threshold     float64
	yearTolerance int
}

// NewMatcher creates a Matcher with the given similarity threshold. A
// non-positive threshold falls back to the default.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Matcher{
		threshold:     threshold,
		yearTolerance: DefaultYearTolerance,
	}
}

// SameRecord reports whether two records are the same paper: exact normalized
// title match, or title similarity at or above the threshold with publication
// years within the tolerance.
func (m *Matcher) SameRecord(titleA string, yearA int, titleB string, yearB int) bool {
	normA := NormalizeTitle(titleA)
	normB := NormalizeTitle(titleB)
	if normA == "" || normB == "" {
		return false
	}
	if normA == normB {
		return true
	}
	diff := yearA - yearB
	if diff < 0 {
		diff = -diff
	}
	if diff > m.yearTolerance {
		return false
	}
	return TitleSimilarity(titleA, titleB) >= m.threshold
}

// BestTitleMatch returns the index of the candidate title most similar to
// the incoming one and reports whether that resolves to the same paper:
// exact normalized match, or similarity at or above the threshold. Used for
// evaluation binding, where no publication year is available.
func (m *Matcher) BestTitleMatch(incoming string, candidates []string) (int, bool) {
	normIn := NormalizeTitle(incoming)
	if normIn == "" {
		return -1, false
	}

	best := -1
	bestScore := 0.0
	for i, candidate := range candidates {
		normC := NormalizeTitle(candidate)
		if normC == "" {
			continue
		}
		if normIn == normC {
			return i, true
		}
		if score := TitleSimilarity(incoming, candidate); score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 || bestScore < m.threshold {
		return -1, false
	}
	return best, true
}

// NormalizeTitle reduces a title to its comparison form: lowercase with only
// alphanumeric characters retained. "Deep-Learning for X!" and "deep learning
// for x" normalize identically.
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	var sb strings.Builder
	sb.Grow(len(title))
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// TitleSimilarity computes a similarity score between two titles in [0,1]
// using the Dice coefficient over their normalized word sets. Identical
// titles score 1.0; titles with no words in common score 0.0.
func TitleSimilarity(a, b string) float64 {
	wordsA := normalizedWords(a)
	wordsB := normalizedWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	common := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			common++
		}
	}

	return 2.0 * float64(common) / float64(len(setA)+len(setB))
}

// normalizedWords splits a title into lowercase alphanumeric word tokens.
func normalizedWords(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}
