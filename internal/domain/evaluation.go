package domain

import "fmt"

// RecommendedAction is the critic's include/exclude decision for a paper.
type RecommendedAction string

const (
	ActionInclude RecommendedAction = "include"
	ActionExclude RecommendedAction = "exclude"
)

// IsValid reports whether the action is one of the two allowed values.
func (a RecommendedAction) IsValid() bool {
	return a == ActionInclude || a == ActionExclude
}

// ScoreWeights fixes the weighting of the three rubric dimensions in the
// combined score. Weights are normalized by their sum when the combined
// score is computed, so {1, 1, 1} yields the arithmetic mean.
type ScoreWeights struct {
	Relevance   float64
	Methodology float64
	Impact      float64
}

// DefaultScoreWeights weighs the three rubric dimensions equally.
var DefaultScoreWeights = ScoreWeights{Relevance: 1, Methodology: 1, Impact: 1}

// Sum returns the total weight.
func (w ScoreWeights) Sum() float64 {
	return w.Relevance + w.Methodology + w.Impact
}

// Validate rejects weight sets that cannot normalize.
func (w ScoreWeights) Validate() error {
	if w.Relevance < 0 || w.Methodology < 0 || w.Impact < 0 {
		return NewValidationError("score_weights", "weights must be non-negative")
	}
	if w.Sum() <= 0 {
		return NewValidationError("score_weights", fmt.Sprintf("weights must sum to a positive value, got %v", w.Sum()))
	}
	return nil
}

// Evaluation is the scoring oracle's rubric assessment of one paper.
// Scores are clamped to [0,5] before an Evaluation is constructed.
type Evaluation struct {
	// Title is the oracle's paper title key, used to bind the evaluation
	// back to a record in the collection.
	Title       string
	Relevance   float64
	Methodology float64
	Impact      float64
	Redundant   bool
	Flags       []string
	Action      RecommendedAction
	Rationale   string
}

// minScore and maxScore bound every rubric dimension.
const (
	minScore = 0.0
	maxScore = 5.0
)

// ClampScore forces a rubric score into the [0,5] range.
func ClampScore(v float64) float64 {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

// Clamp returns a copy of the evaluation with all three scores clamped
// into the valid range.
func (e Evaluation) Clamp() Evaluation {
	e.Relevance = ClampScore(e.Relevance)
	e.Methodology = ClampScore(e.Methodology)
	e.Impact = ClampScore(e.Impact)
	return e
}

// CombinedScore derives the ranking score from the three rubric dimensions
// using the given weights.
func (e Evaluation) CombinedScore(w ScoreWeights) float64 {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	return (e.Relevance*w.Relevance + e.Methodology*w.Methodology + e.Impact*w.Impact) / sum
}
