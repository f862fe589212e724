package agents

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/models"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	systems   []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(context.Background(), "", prompt)
}

func (f *fakeLLM) CompleteWithSystem(_ context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) Name() string { return "fake" }

type fakeSummaries struct {
	byCompany map[string][]models.Summary
}

func (f *fakeSummaries) Upsert(context.Context, *models.Summary) error         { return nil }
func (f *fakeSummaries) Get(context.Context, string) (*models.Summary, error)  { return nil, nil }
func (f *fakeSummaries) Count(context.Context) (int, error)                    { return 0, nil }
func (f *fakeSummaries) RecentByCompany(_ context.Context, company string, limit int) ([]models.Summary, error) {
	out := f.byCompany[company]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeMarketData struct {
	candles map[string][]models.Candle
	prices  map[string]float64
	err     error
}

func (f *fakeMarketData) Candles(_ context.Context, ticker, _ string, _, _ time.Time) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[ticker], nil
}

func (f *fakeMarketData) LastPrice(_ context.Context, ticker string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[ticker], nil
}

func dailyCandles(ticker string, closes []float64) []models.Candle {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Ticker:    ticker,
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func TestNewsAgent_AggregatesAndClassifies(t *testing.T) {
	summaries := &fakeSummaries{byCompany: map[string][]models.Summary{
		"RELIANCE": {
			{Title: "Profit beats estimates", SentimentLabel: "positive", SentimentScore: 0.9, SummaryText: "Strong quarter."},
			{Title: "New refinery approved", SentimentLabel: "positive", SentimentScore: 0.7, SummaryText: "Capacity grows."},
		},
	}}
	llm := &fakeLLM{responses: []string{"bullish"}}
	agent := NewNewsAgent(summaries, llm, common.GetLogger())

	out, err := agent.Analyze(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, "bullish", out.OverallSentiment)
	assert.Equal(t, 2, out.ArticleCount)
	assert.InDelta(t, 0.8, out.SentimentScore, 1e-9)
	assert.Equal(t, []string{"Profit beats estimates", "New refinery approved"}, out.TopHeadlines)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Return ONLY: bullish, bearish, or neutral.")
}

func TestNewsAgent_NoCoverage(t *testing.T) {
	agent := NewNewsAgent(&fakeSummaries{}, &fakeLLM{}, common.GetLogger())

	out, err := agent.Analyze(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, "neutral", out.OverallSentiment)
	assert.Zero(t, out.ArticleCount)
}

func TestNewsAgent_ClassificationFailureIsNeutral(t *testing.T) {
	summaries := &fakeSummaries{byCompany: map[string][]models.Summary{
		"TCS": {{Title: "Deal win", SentimentScore: 0.8}},
	}}
	agent := NewNewsAgent(summaries, &fakeLLM{err: fmt.Errorf("quota")}, common.GetLogger())

	out, err := agent.Analyze(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, "neutral", out.OverallSentiment)
}

func TestNewsAgent_UnexpectedLabelIsNeutral(t *testing.T) {
	summaries := &fakeSummaries{byCompany: map[string][]models.Summary{
		"TCS": {{Title: "Deal win", SentimentScore: 0.8}},
	}}
	agent := NewNewsAgent(summaries, &fakeLLM{responses: []string{"extremely positive"}}, common.GetLogger())

	out, err := agent.Analyze(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, "neutral", out.OverallSentiment)
}

type fakeFeed struct {
	posts []string
	err   error
}

func (f *fakeFeed) RecentPosts(context.Context, string, int) ([]string, error) {
	return f.posts, f.err
}

func TestTwitterAgent_ScoresPosts(t *testing.T) {
	feed := &fakeFeed{posts: []string{"loving this stock", "to the moon"}}
	agent := NewTwitterAgent(feed, &fakeLLM{responses: []string{"0.85"}}, common.GetLogger())

	out, err := agent.Analyze(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 2, out.PostCount)
	assert.Equal(t, 0.85, out.SentimentScore)
}

func TestTwitterAgent_NeutralFallbacks(t *testing.T) {
	cases := []struct {
		name  string
		agent *TwitterAgent
	}{
		{"no feed", NewTwitterAgent(nil, &fakeLLM{}, common.GetLogger())},
		{"feed error", NewTwitterAgent(&fakeFeed{err: fmt.Errorf("down")}, &fakeLLM{}, common.GetLogger())},
		{"no posts", NewTwitterAgent(&fakeFeed{}, &fakeLLM{}, common.GetLogger())},
		{"bad score", NewTwitterAgent(&fakeFeed{posts: []string{"hm"}}, &fakeLLM{responses: []string{"very positive"}}, common.GetLogger())},
		{"out of range", NewTwitterAgent(&fakeFeed{posts: []string{"hm"}}, &fakeLLM{responses: []string{"7.5"}}, common.GetLogger())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.agent.Analyze(context.Background(), "TCS")
			require.NoError(t, err)
			assert.Equal(t, 0.5, out.SentimentScore)
		})
	}
}

func TestTechnicalAgent_InsufficientBars(t *testing.T) {
	md := &fakeMarketData{candles: map[string][]models.Candle{
		"TCS": dailyCandles("TCS", []float64{100, 101, 102}),
	}}
	agent := NewTechnicalAgent(md, common.GetLogger())

	out, err := agent.Analyze(context.Background(), "TCS", models.RoutingDecision{Interval: models.IntervalDay})
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, out.Action)
	assert.Contains(t, out.Summary, "bars available")
}

func TestTechnicalAgent_ComputesIndicators(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	md := &fakeMarketData{candles: map[string][]models.Candle{
		"RELIANCE": dailyCandles("RELIANCE", closes),
	}}
	agent := NewTechnicalAgent(md, common.GetLogger())

	out, err := agent.Analyze(context.Background(), "RELIANCE", models.RoutingDecision{Interval: models.IntervalDay})
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", out.Ticker)
	assert.Equal(t, 159.0, out.LastClose)
	// A monotone rise pins RSI at 100 and keeps MACD above its signal.
	assert.Equal(t, 100.0, out.RSI)
	assert.Greater(t, out.MACD, out.MACDSignal)
	assert.Greater(t, out.BBUpper, out.BBLower)
	assert.NotEmpty(t, out.Summary)
}

func TestMonteCarloAgent_ProjectsDistribution(t *testing.T) {
	closes := make([]float64, 120)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		// Alternating moves with mild upward drift.
		if i%2 == 0 {
			closes[i] = closes[i-1] * 1.012
		} else {
			closes[i] = closes[i-1] * 0.995
		}
	}
	md := &fakeMarketData{candles: map[string][]models.Candle{
		"RELIANCE": dailyCandles("RELIANCE", closes),
	}}
	agent := NewMonteCarloAgent(md, 2000, common.GetLogger())
	agent.newRand = func() *rand.Rand { return rand.New(rand.NewSource(42)) }

	out, err := agent.Analyze(context.Background(), "RELIANCE", models.RoutingDecision{
		Interval:       models.IntervalDay,
		TimeframeHours: 30 * 24,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, out.Horizon)
	assert.Equal(t, 2000, out.Simulations)
	assert.Greater(t, out.ExpectedPrice, 0.0)
	assert.Less(t, out.VaR95, out.Upside95)
	assert.GreaterOrEqual(t, out.ProbGain, 0.0)
	assert.LessOrEqual(t, out.ProbGain, 1.0)
	// Positive drift should leave the expected terminal above spot more
	// often than not.
	assert.Greater(t, out.ProbGain, 0.5)
}

func TestMonteCarloAgent_NeedsHistory(t *testing.T) {
	md := &fakeMarketData{candles: map[string][]models.Candle{
		"TCS": dailyCandles("TCS", []float64{100, 101}),
	}}
	agent := NewMonteCarloAgent(md, 100, common.GetLogger())

	_, err := agent.Analyze(context.Background(), "TCS", models.RoutingDecision{Interval: models.IntervalDay})
	assert.Error(t, err)
}

type fakePortfolioService struct {
	portfolio *models.Portfolio
	err       error
}

func (f *fakePortfolioService) Initialize(context.Context, string, float64, []models.Holding) (*models.Portfolio, error) {
	return f.portfolio, f.err
}

func (f *fakePortfolioService) Apply(context.Context, *models.Transaction) (*models.Portfolio, error) {
	return f.portfolio, f.err
}

func (f *fakePortfolioService) Get(context.Context, string) (*models.Portfolio, error) {
	return f.portfolio, f.err
}

func (f *fakePortfolioService) GetByUser(context.Context, string) (*models.Portfolio, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.portfolio, nil
}

func TestFundamentalAgent_UsesHoldingContext(t *testing.T) {
	portfolio := &fakePortfolioService{portfolio: &models.Portfolio{
		Holdings: []models.Holding{{Ticker: "RELIANCE", Beta: 1.1, Sector: "Energy"}},
	}}
	llm := &fakeLLM{responses: []string{"Large conglomerate with steady cash flows."}}
	agent := NewFundamentalAgent(portfolio, llm, "user-1", common.GetLogger())

	out, err := agent.Analyze(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 1.1, out.Beta)
	assert.Equal(t, "Energy", out.Sector)
	assert.Equal(t, "Large conglomerate with steady cash flows.", out.Summary)
}

func TestFundamentalAgent_ModelFailure(t *testing.T) {
	agent := NewFundamentalAgent(nil, &fakeLLM{err: fmt.Errorf("quota")}, "", common.GetLogger())

	out, err := agent.Analyze(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, "No fundamental narrative available.", out.Summary)
}
