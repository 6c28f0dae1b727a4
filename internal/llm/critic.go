package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/questscholar/litpipeline/internal/collection"
	"github.com/questscholar/litpipeline/internal/domain"
)

// evaluationEntry is the expected JSON shape of one oracle evaluation.
type evaluationEntry struct {
	Title                   string   `json:"title"`
	RelevanceScore          *float64 `json:"relevance_score"`
	MethodologicalSoundness *float64 `json:"methodological_soundness"`
	ImpactScore             *float64 `json:"impact_score"`
	RedundancyFlag          bool     `json:"redundancy_flag"`
	Flags                   []string `json:"flags"`
	RecommendedAction       string   `json:"recommended_action"`
	Rationale               string   `json:"rationale"`
}

// oracleEnvelope is the top-level object the rubric prompt asks for.
type oracleEnvelope struct {
	Evaluations []json.RawMessage `json:"evaluations"`
}

// CriticResult contains the validated evaluations and oracle metadata.
type CriticResult struct {
	// Evaluations are the entries that passed schema validation, clamped to [0,5].
	Evaluations []domain.Evaluation

	// Dropped counts entries rejected as malformed.
	Dropped int

	// Model is the model that produced the response.
	Model string

	// InputTokens is the number of input tokens used.
	InputTokens int

	// OutputTokens is the number of output tokens used.
	OutputTokens int
}

// Critic runs the scoring oracle against a collection snapshot and validates
// its structured output entry by entry. Malformed entries are dropped and
// counted, never propagated.
type Critic struct {
	provider ChatProvider
	logger   zerolog.Logger
}

// NewCritic creates a Critic backed by the given chat provider.
func NewCritic(provider ChatProvider, logger zerolog.Logger) *Critic {
	return &Critic{
		provider: provider,
		logger:   logger.With().Str("component", "critic").Logger(),
	}
}

// Evaluate sends the serialized snapshot and rubric instructions to the
// oracle, then parses and validates the response. An empty snapshot returns
// an empty result without calling the oracle. A response whose top-level
// structure cannot be parsed at all is an OracleError; individually
// malformed entries are dropped and counted.
func (c *Critic) Evaluate(ctx context.Context, subject string, snapshot []collection.PaperSummary) (*CriticResult, error) {
	if len(snapshot) == 0 {
		return &CriticResult{}, nil
	}

	systemPrompt, userPrompt, err := BuildScoringPrompt(subject, snapshot)
	if err != nil {
		return nil, err
	}

	completion, err := c.provider.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("scoring oracle call via %s failed: %w", c.provider.Provider(), err)
	}

	entries, err := parseOracleResponse(completion.Content)
	if err != nil {
		return nil, err
	}

	result := &CriticResult{
		Evaluations:  make([]domain.Evaluation, 0, len(entries)),
		Model:        completion.Model,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
	}

	for i, raw := range entries {
		eval, err := decodeEntry(raw)
		if err != nil {
			result.Dropped++
			c.logger.Warn().Int("entry", i).Err(err).Msg("dropping malformed oracle evaluation")
			continue
		}
		result.Evaluations = append(result.Evaluations, eval)
	}

	return result, nil
}

// Provider returns the underlying oracle provider name.
func (c *Critic) Provider() string {
	return c.provider.Provider()
}

// Model returns the underlying oracle model identifier.
func (c *Critic) Model() string {
	return c.provider.Model()
}

// decodeEntry validates a single oracle entry and converts it to an
// Evaluation. Scores are clamped to [0,5]; missing scores, an empty title,
// or an unknown recommended action reject the entry.
func decodeEntry(raw json.RawMessage) (domain.Evaluation, error) {
	var entry evaluationEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.Evaluation{}, domain.NewOracleError("", err.Error())
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return domain.Evaluation{}, domain.NewOracleError("", "missing title")
	}

	if entry.RelevanceScore == nil || entry.MethodologicalSoundness == nil || entry.ImpactScore == nil {
		return domain.Evaluation{}, domain.NewOracleError(title, "missing rubric score")
	}

	action := domain.RecommendedAction(strings.ToLower(strings.TrimSpace(entry.RecommendedAction)))
	if !action.IsValid() {
		return domain.Evaluation{}, domain.NewOracleError(title, fmt.Sprintf("unknown recommended action %q", entry.RecommendedAction))
	}

	eval := domain.Evaluation{
		Title:       title,
		Relevance:   *entry.RelevanceScore,
		Methodology: *entry.MethodologicalSoundness,
		Impact:      *entry.ImpactScore,
		Redundant:   entry.RedundancyFlag,
		Flags:       entry.Flags,
		Action:      action,
		Rationale:   strings.TrimSpace(entry.Rationale),
	}
	return eval.Clamp(), nil
}

// parseOracleResponse extracts the list of raw evaluation entries from the
// oracle's reply. It accepts the requested envelope object, a bare JSON
// array, and either form wrapped in markdown code fences.
func parseOracleResponse(content string) ([]json.RawMessage, error) {
	text := stripCodeFences(content)
	if text == "" {
		return nil, domain.NewOracleError("", "empty response")
	}

	var envelope oracleEnvelope
	if err := json.Unmarshal([]byte(text), &envelope); err == nil && envelope.Evaluations != nil {
		return envelope.Evaluations, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(text), &entries); err == nil {
		return entries, nil
	}

	return nil, domain.NewOracleError("", "response is neither an evaluations object nor a JSON array")
}

// stripCodeFences removes a surrounding markdown code fence, if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// BuildScoringPrompt builds the system and user prompts for the scoring
// oracle. The system prompt fixes the rubric and the response schema; the
// user prompt carries the subject and the serialized paper snapshot.
func BuildScoringPrompt(subject string, snapshot []collection.PaperSummary) (systemPrompt, userPrompt string, err error) {
	serialized, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("serializing snapshot: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are a senior research librarian screening papers for a systematic literature review. ")
	sb.WriteString("For every paper in the list you will produce one evaluation object.\n\n")

	sb.WriteString("Score each paper on three dimensions, each a number from 0 to 5:\n")
	sb.WriteString("- relevance_score: how directly the paper addresses the review subject.\n")
	sb.WriteString("- methodological_soundness: rigor of study design, sample size, and statistical treatment.\n")
	sb.WriteString("- impact_score: influence and importance, informed by venue and citations.\n\n")

	sb.WriteString("Also provide:\n")
	sb.WriteString("- redundancy_flag: true if the paper substantially duplicates another paper in the list.\n")
	sb.WriteString("- flags: zero or more of [\"review\", \"meta_analysis\", \"clinical_trial\", \"case_report\", \"guideline\", \"preprint\", \"genomics\", \"targeted_therapy\"].\n")
	sb.WriteString("- recommended_action: \"include\" or \"exclude\".\n")
	sb.WriteString("- rationale: one or two sentences justifying the scores.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"evaluations": [{"title": "<exact title from the list>", "relevance_score": 4.5, "methodological_soundness": 4.0, "impact_score": 3.5, "redundancy_flag": false, "flags": ["review"], "recommended_action": "include", "rationale": "..."}]}`)
	sb.WriteString("\n\n")
	sb.WriteString("Copy each title verbatim from the list so evaluations can be matched back to papers. ")
	sb.WriteString("Do not invent papers that are not in the list.")

	systemPrompt = sb.String()

	var ub strings.Builder
	ub.WriteString("Review subject: ")
	ub.WriteString(subject)
	ub.WriteString("\n\nPapers to evaluate:\n")
	ub.Write(serialized)

	return systemPrompt, ub.String(), nil
}
