package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
)

// NewProvider builds the provider named in config. Empty or unknown names
// fall back to Gemini.
func NewProvider(ctx context.Context, name string, config *common.Config, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	switch name {
	case interfaces.LLMProviderClaude:
		return NewClaudeProvider(&config.Claude, logger)
	case interfaces.LLMProviderGemini, "":
		return NewGeminiProvider(ctx, &config.Gemini, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q: %w", name, interfaces.ErrNoLLMProvider)
	}
}

// NewDecisionProvider builds the provider used for orchestrator routing
// decisions. A dedicated decision API key, when set, overrides the primary
// key so routing traffic draws on a separate quota.
func NewDecisionProvider(ctx context.Context, config *common.Config, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	name := config.LLM.DecisionProvider
	if name == "" {
		name = config.LLM.DefaultProvider
	}

	if config.LLM.DecisionAPIKey == "" {
		return NewProvider(ctx, name, config, logger)
	}

	scoped := *config
	switch name {
	case interfaces.LLMProviderClaude:
		scoped.Claude.APIKey = config.LLM.DecisionAPIKey
	default:
		scoped.Gemini.APIKey = config.LLM.DecisionAPIKey
	}
	return NewProvider(ctx, name, &scoped, logger)
}
