package interfaces

import "context"

// LLM provider names.
const (
	LLMProviderGemini = "gemini"
	LLMProviderClaude = "claude"
)

// LLMProvider is a minimal text-completion surface over a hosted model.
// Implementations carry their own retry and rate-limit handling.
type LLMProvider interface {
	// Complete sends a single-turn prompt and returns the text response.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem prepends a system instruction.
	CompleteWithSystem(ctx context.Context, system, prompt string) (string, error)

	Name() string
}
