package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
)

// ClaudeProvider implements interfaces.LLMProvider over the Anthropic API.
type ClaudeProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	retry     *RetryConfig
	logger    arbor.ILogger
}

func NewClaudeProvider(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("claude: %w", interfaces.ErrNoLLMProvider)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &ClaudeProvider{
		client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:     config.Model,
		maxTokens: maxTokens,
		timeout:   common.DurationOr(config.Timeout, 45*time.Second),
		retry:     NewDefaultRetryConfig(),
		logger:    logger,
	}, nil
}

func (p *ClaudeProvider) Name() string { return interfaces.LLMProviderClaude }

func (p *ClaudeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return p.generate(ctx, "", prompt)
}

func (p *ClaudeProvider) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return p.generate(ctx, system, prompt)
}

func (p *ClaudeProvider) generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var resp *anthropic.Message
	var apiErr error

	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		resp, apiErr = p.client.Messages.New(callCtx, params)
		cancel()
		if apiErr == nil {
			break
		}
		if attempt == p.retry.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = p.retry.CalculateBackoff(attempt, 0)
		}

		p.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return "", fmt.Errorf("Claude API call failed after %d retries: %w", p.retry.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("claude: %w", interfaces.ErrEmptyLLMReply)
	}
	return text.String(), nil
}
