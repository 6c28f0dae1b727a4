// Package llm provides the scoring oracle for the literature pipeline.
//
// The oracle is a language-model-backed collaborator that reads a serialized
// snapshot of the paper collection together with fixed rubric instructions
// and returns one structured evaluation per paper. This package defines the
// provider abstraction (OpenAI, Anthropic), the rubric prompt, and the
// Critic, which validates the oracle's structured output entry by entry.
//
// Example usage:
//
//	provider, err := llm.NewChatProvider(cfg)
//	critic := llm.NewCritic(provider, logger)
//	result, err := critic.Evaluate(ctx, subject, store.SnapshotForEvaluation())
package llm

import "context"

// Completion is the raw result of a single chat completion call.
type Completion struct {
	// Content is the text of the model's reply.
	Content string

	// Model is the model identifier that produced the reply.
	Model string

	// InputTokens is the number of input tokens used.
	InputTokens int

	// OutputTokens is the number of output tokens used.
	OutputTokens int
}

// ChatProvider defines the interface for a chat-completion backend.
//
// Implementations handle provider-specific API calls, transient-error
// retries, and error handling while conforming to this unified interface.
type ChatProvider interface {
	// Complete sends the system and user prompts to the model and returns
	// its reply. The context should be used for cancellation and deadline
	// propagation. Implementations request JSON output where the API
	// supports it, but callers must still validate the reply.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used (e.g., "gpt-4o").
	Model() string
}
