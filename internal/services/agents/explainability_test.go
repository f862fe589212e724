package agents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/models"
)

func newTestExplainer(llm *fakeLLM, portfolio *fakePortfolioService, md *fakeMarketData) *ExplainabilityAgent {
	agent := NewExplainabilityAgent(llm, nil, nil, "user-1", 5, common.GetLogger())
	if portfolio != nil {
		agent.portfolio = portfolio
	}
	if md != nil {
		agent.marketData = md
	}
	agent.now = fixedNow
	return agent
}

func baseReport() *models.AnalysisReport {
	return &models.AnalysisReport{
		Tickers:       []string{"RELIANCE"},
		ShouldPublish: true,
		News:          &models.NewsOutput{Ticker: "RELIANCE", OverallSentiment: "bullish"},
		Technical:     &models.TechnicalOutput{Ticker: "RELIANCE", Action: models.ActionBuy},
	}
}

func TestSynthesize_SkeletonIsDeterministic(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("model down")}
	agent := newTestExplainer(llm, nil, nil)

	report := baseReport()
	agent.Synthesize(context.Background(), "should I buy reliance", report)

	assert.Equal(t, reportType, report.Meta.Type)
	assert.Equal(t, "should I buy reliance", report.Meta.Query)
	assert.Equal(t, fixedNow().UTC(), report.Meta.Timestamp)
	assert.Equal(t, []string{models.AgentNews, models.AgentTechnical}, report.AgentsInvoked)
	// Model failure still leaves a well-formed report.
	assert.Equal(t, "Synthesis unavailable.", report.Summary)
}

func TestSynthesize_ToolLoopFetchesPortfolio(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"tool": "get_portfolio"}`,
		`{"portfolio_context":{"is_holding":true,"current_position":10,"suggested_action":"HOLD"},"summary":"Already holding, news supports keeping the position."}`,
	}}
	portfolio := &fakePortfolioService{portfolio: &models.Portfolio{
		UserID:   "user-1",
		Cash:     5000,
		Holdings: []models.Holding{{Ticker: "RELIANCE", Quantity: 10}},
	}}
	agent := newTestExplainer(llm, portfolio, nil)

	report := baseReport()
	agent.Synthesize(context.Background(), "should I buy reliance", report)

	require.NotNil(t, report.PortfolioContext)
	assert.True(t, report.PortfolioContext.IsHolding)
	assert.Equal(t, 10.0, report.PortfolioContext.CurrentPosition)
	assert.Equal(t, "HOLD", report.PortfolioContext.SuggestedAction)
	assert.Equal(t, "Already holding, news supports keeping the position.", report.Summary)

	// The second prompt carries the tool result transcript.
	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "get_portfolio")
	assert.Contains(t, llm.prompts[1], `"RELIANCE"`)
}

func TestSynthesize_FencedVerdictParses(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"```json\n{\"portfolio_context\":{\"is_holding\":false,\"current_position\":0,\"suggested_action\":\"BUY\"},\"summary\":\"Entry looks favorable.\"}\n```",
	}}
	agent := newTestExplainer(llm, nil, nil)

	report := baseReport()
	agent.Synthesize(context.Background(), "q", report)

	require.NotNil(t, report.PortfolioContext)
	assert.Equal(t, "BUY", report.PortfolioContext.SuggestedAction)
	assert.Equal(t, "Entry looks favorable.", report.Summary)
}

func TestSynthesize_MalformedVerdictKeptAsRawSummary(t *testing.T) {
	llm := &fakeLLM{responses: []string{"The stock looks good, I would buy."}}
	agent := newTestExplainer(llm, nil, nil)

	report := baseReport()
	agent.Synthesize(context.Background(), "q", report)

	assert.Nil(t, report.PortfolioContext)
	assert.Equal(t, "The stock looks good, I would buy.", report.Summary)
}

func TestSynthesize_ToolLoopBudget(t *testing.T) {
	// The model keeps asking for the portfolio and never answers.
	llm := &fakeLLM{responses: []string{`{"tool": "get_portfolio"}`}}
	agent := newTestExplainer(llm, &fakePortfolioService{portfolio: &models.Portfolio{}}, nil)
	agent.maxIterations = 3

	report := baseReport()
	agent.Synthesize(context.Background(), "q", report)

	assert.Len(t, llm.prompts, 3)
	assert.Equal(t, "Synthesis did not converge.", report.Summary)
}

func TestSynthesize_UnknownToolSurfacesError(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"tool": "get_weather"}`,
		`{"portfolio_context":{"is_holding":false,"current_position":0,"suggested_action":"HOLD"},"summary":"Done."}`,
	}}
	agent := newTestExplainer(llm, nil, nil)

	report := baseReport()
	agent.Synthesize(context.Background(), "q", report)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "unknown tool")
	assert.Equal(t, "Done.", report.Summary)
}

func TestSynthesize_AggregatePathUsesLastPrices(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"portfolio_context":{"is_holding":false,"current_position":0,"suggested_action":"HOLD"},"summary":"Broad market looks stable."}`,
	}}
	md := &fakeMarketData{prices: map[string]float64{"RELIANCE": 2867.45, "TCS": 4100.10}}
	agent := newTestExplainer(llm, nil, md)

	report := &models.AnalysisReport{
		Tickers:       []string{"RELIANCE", "TCS"},
		ShouldPublish: true,
	}
	agent.Synthesize(context.Background(), "compare reliance and tcs", report)

	assert.Empty(t, report.AgentsInvoked)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Last traded prices")
	assert.Contains(t, llm.prompts[0], "2867.45")
	assert.Equal(t, "Broad market looks stable.", report.Summary)
}

func TestSynthesize_TriggerSignalInPrompt(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"portfolio_context":{"is_holding":false,"current_position":0,"suggested_action":"BUY"},"summary":"ok"}`,
	}}
	agent := newTestExplainer(llm, nil, nil)

	report := baseReport()
	report.TriggerSignal = &models.TradeSignal{
		Ticker:         "RELIANCE",
		Action:         models.ActionBuy,
		SignalStrength: 7,
		Reason:         "macd says BUY, rsi says BUY, ",
		Date:           time.Now().Format(time.RFC3339),
	}
	agent.Synthesize(context.Background(), "q", report)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "strength 7")
	assert.Contains(t, llm.prompts[0], "macd says BUY")
}
