package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	socialFetchLimit = 30
	// Midpoint of the 0-1 score range; used whenever scoring fails.
	neutralScore = 0.5
)

// SocialFeed supplies recent public posts mentioning a ticker.
type SocialFeed interface {
	RecentPosts(ctx context.Context, ticker string, limit int) ([]string, error)
}

// TwitterAgent scores social chatter for a ticker on a 0-1 scale via the
// model. No feed or no posts yields a neutral reading, never an error.
type TwitterAgent struct {
	feed   SocialFeed
	llm    interfaces.LLMProvider
	logger arbor.ILogger
}

func NewTwitterAgent(feed SocialFeed, llm interfaces.LLMProvider, logger arbor.ILogger) *TwitterAgent {
	return &TwitterAgent{feed: feed, llm: llm, logger: logger}
}

func (a *TwitterAgent) Analyze(ctx context.Context, ticker string) (*models.TwitterOutput, error) {
	out := &models.TwitterOutput{
		Ticker:         ticker,
		SentimentScore: neutralScore,
		Summary:        "No social data.",
	}
	if a.feed == nil {
		return out, nil
	}

	posts, err := a.feed.RecentPosts(ctx, ticker, socialFetchLimit)
	if err != nil {
		a.logger.Warn().Str("ticker", ticker).Err(err).Msg("Social feed unavailable")
		return out, nil
	}
	out.PostCount = len(posts)
	if len(posts) == 0 {
		return out, nil
	}

	out.SentimentScore = a.score(ctx, ticker, posts)
	out.Summary = fmt.Sprintf("%d posts, sentiment %.2f", len(posts), out.SentimentScore)
	return out, nil
}

// score asks the model for a single number in [0,1]. Out-of-range or
// unparseable replies fall back to neutral.
func (a *TwitterAgent) score(ctx context.Context, ticker string, posts []string) float64 {
	if a.llm == nil {
		return neutralScore
	}
	prompt := fmt.Sprintf(
		"Posts about %s:\n%s\nRate the overall sentiment toward the stock from 0.0 (very bearish) to 1.0 (very bullish). Return ONLY the number.",
		ticker, "- "+strings.Join(posts, "\n- "))

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn().Str("ticker", ticker).Err(err).Msg("Social scoring failed, defaulting to neutral")
		return neutralScore
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(stripCodeFences(raw)), 64)
	if err != nil || score < 0 || score > 1 {
		a.logger.Warn().Str("ticker", ticker).Str("raw", raw).Msg("Unparseable sentiment score")
		return neutralScore
	}
	return score
}
