package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

// FundamentalAgent gives qualitative valuation context. Sector and beta come
// from the user's holdings when the stock is held; the narrative comes from
// the model.
type FundamentalAgent struct {
	portfolio interfaces.PortfolioService
	llm       interfaces.LLMProvider
	userID    string
	logger    arbor.ILogger
}

func NewFundamentalAgent(portfolio interfaces.PortfolioService, llm interfaces.LLMProvider, userID string, logger arbor.ILogger) *FundamentalAgent {
	return &FundamentalAgent{portfolio: portfolio, llm: llm, userID: userID, logger: logger}
}

func (a *FundamentalAgent) Analyze(ctx context.Context, ticker string) (*models.FundamentalOutput, error) {
	out := &models.FundamentalOutput{Ticker: ticker}

	if a.portfolio != nil && a.userID != "" {
		if p, err := a.portfolio.GetByUser(ctx, a.userID); err == nil {
			if holding := p.FindHolding(ticker); holding != nil {
				out.Beta = holding.Beta
				out.Sector = holding.Sector
			}
		}
	}

	out.Summary = a.narrative(ctx, ticker, out.Sector)
	return out, nil
}

func (a *FundamentalAgent) narrative(ctx context.Context, ticker, sector string) string {
	if a.llm == nil {
		return "No fundamental narrative available."
	}
	prompt := fmt.Sprintf("Give a three-sentence fundamental assessment of the Indian-listed stock %s", ticker)
	if sector != "" {
		prompt += fmt.Sprintf(" (%s sector)", sector)
	}
	prompt += ". Cover business quality, valuation posture, and the main risk. Plain text only."

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn().Str("ticker", ticker).Err(err).Msg("Fundamental narrative failed")
		return "No fundamental narrative available."
	}
	return strings.TrimSpace(raw)
}
