package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	newsFetchLimit   = 50
	newsHeadlineTop  = 5
	neutralSentiment = "neutral"
)

// NewsAgent aggregates recent summarized coverage for a ticker and asks the
// model for a one-word overall read.
type NewsAgent struct {
	summaries interfaces.SummaryStorage
	llm       interfaces.LLMProvider
	logger    arbor.ILogger
}

func NewNewsAgent(summaries interfaces.SummaryStorage, llm interfaces.LLMProvider, logger arbor.ILogger) *NewsAgent {
	return &NewsAgent{summaries: summaries, llm: llm, logger: logger}
}

// Analyze builds the news view for one ticker. Classification failures
// degrade to neutral rather than erroring out the whole report.
func (a *NewsAgent) Analyze(ctx context.Context, ticker string) (*models.NewsOutput, error) {
	recent, err := a.summaries.RecentByCompany(ctx, ticker, newsFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch summaries for %s: %w", ticker, err)
	}

	out := &models.NewsOutput{
		Ticker:           ticker,
		OverallSentiment: neutralSentiment,
		ArticleCount:     len(recent),
	}
	if len(recent) == 0 {
		out.Summary = "No recent coverage."
		return out, nil
	}

	var scoreSum float64
	var digest strings.Builder
	for i, summary := range recent {
		scoreSum += summary.SentimentScore
		if i < newsHeadlineTop {
			out.TopHeadlines = append(out.TopHeadlines, summary.Title)
		}
		fmt.Fprintf(&digest, "- [%s %.2f] %s: %s\n",
			summary.SentimentLabel, summary.SentimentScore, summary.Title, summary.SummaryText)
	}
	out.SentimentScore = scoreSum / float64(len(recent))
	out.Summary = fmt.Sprintf("%d articles, mean sentiment %.2f", len(recent), out.SentimentScore)

	out.OverallSentiment = a.classify(ctx, ticker, digest.String())
	return out, nil
}

// classify asks for a single-word verdict over the digest. Anything the
// model returns outside the three labels counts as neutral.
func (a *NewsAgent) classify(ctx context.Context, ticker, digest string) string {
	if a.llm == nil {
		return neutralSentiment
	}
	prompt := fmt.Sprintf(
		"Recent news coverage for %s:\n%s\nClassify the overall tone for the stock. Return ONLY: bullish, bearish, or neutral.",
		ticker, digest)

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn().Str("ticker", ticker).Err(err).Msg("News classification failed, defaulting to neutral")
		return neutralSentiment
	}
	switch verdict := strings.ToLower(strings.TrimSpace(stripCodeFences(raw))); verdict {
	case "bullish", "bearish", "neutral":
		return verdict
	default:
		a.logger.Warn().Str("ticker", ticker).Str("verdict", verdict).Msg("Unexpected classification label")
		return neutralSentiment
	}
}
