package agents

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]interfaces.MessageHandler
	published []publishedMessage
}

type publishedMessage struct {
	topic string
	key   string
	value []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]interfaces.MessageHandler)}
}

func (b *fakeBroker) Publish(_ context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMessage{topic: topic, key: key, value: data})
	return nil
}

func (b *fakeBroker) Flush(context.Context) error { return nil }

func (b *fakeBroker) Subscribe(topic, _ string, handler interfaces.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) deliver(t *testing.T, topic string, value any) {
	t.Helper()
	data, err := json.Marshal(value)
	require.NoError(t, err)
	b.mu.Lock()
	handler := b.handlers[topic]
	b.mu.Unlock()
	require.NotNil(t, handler, "no handler for %s", topic)
	require.NoError(t, handler(context.Background(), interfaces.BrokerMessage{Topic: topic, Value: data}))
}

func (b *fakeBroker) reports(t *testing.T) []models.AnalysisReport {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.AnalysisReport
	for _, msg := range b.published {
		var report models.AnalysisReport
		require.NoError(t, json.Unmarshal(msg.value, &report))
		out = append(out, report)
	}
	return out
}

// newTestCoordinator builds a coordinator whose news agent reports the given
// sentiment and whose synthesis model emits a fixed verdict.
func newTestCoordinator(t *testing.T, newsSentiment string) *Coordinator {
	t.Helper()
	logger := common.GetLogger()

	summaries := &fakeSummaries{byCompany: map[string][]models.Summary{
		"RELIANCE": {{Title: "Quarterly results", SentimentScore: 0.5}},
	}}
	news := NewNewsAgent(summaries, &fakeLLM{responses: []string{newsSentiment}}, logger)
	twitter := NewTwitterAgent(nil, nil, logger)

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	md := &fakeMarketData{candles: map[string][]models.Candle{
		"RELIANCE": dailyCandles("RELIANCE", closes),
	}}
	technical := NewTechnicalAgent(md, logger)
	montecarlo := NewMonteCarloAgent(md, 200, logger)

	explainLLM := &fakeLLM{responses: []string{
		`{"portfolio_context":{"is_holding":false,"current_position":0,"suggested_action":"HOLD"},"summary":"Synthesized."}`,
	}}
	explain := NewExplainabilityAgent(explainLLM, nil, nil, "", 5, logger)
	explain.now = fixedNow

	orchestrator := NewOrchestrator(nil, nil, logger)
	orchestrator.now = fixedNow

	return NewCoordinator(orchestrator, news, twitter, technical, nil, montecarlo, explain, nil, logger)
}

func newTestRouter(t *testing.T, broker *fakeBroker, coordinator *Coordinator) *Router {
	t.Helper()
	router := NewRouter(&common.AgentsConfig{
		MaxConcurrent:   3,
		ShutdownTimeout: "5s",
	}, broker, coordinator, common.GetLogger())
	require.NoError(t, router.Start(context.Background()))
	return router
}

func TestRouter_SignalTriggersAnalysisAndPublishes(t *testing.T) {
	broker := newFakeBroker()
	router := newTestRouter(t, broker, newTestCoordinator(t, "bullish"))

	broker.deliver(t, interfaces.TopicTradeSignals, models.TradeSignal{
		Ticker: "RELIANCE",
		Action: models.ActionBuy,
	})
	router.Stop()

	reports := broker.reports(t)
	require.Len(t, reports, 1)
	report := reports[0]
	assert.Equal(t, []string{"RELIANCE"}, report.Tickers)
	assert.True(t, report.ShouldPublish)
	require.NotNil(t, report.News)
	assert.Equal(t, "bullish", report.News.OverallSentiment)
	require.NotNil(t, report.Twitter)
	require.NotNil(t, report.MonteCarlo)
	assert.Nil(t, report.Technical, "technical pipeline already ran; signal path skips it")
	assert.Equal(t, "Synthesized.", report.Summary)

	require.Len(t, broker.published, 1)
	assert.Equal(t, interfaces.TopicStockAnalysis, broker.published[0].topic)
	assert.Equal(t, "RELIANCE", broker.published[0].key)
}

func TestRouter_ConflictSuppressesPublish(t *testing.T) {
	broker := newFakeBroker()
	router := newTestRouter(t, broker, newTestCoordinator(t, "bearish"))

	// BUY against bearish coverage must not reach the analysis topic.
	broker.deliver(t, interfaces.TopicTradeSignals, models.TradeSignal{
		Ticker: "RELIANCE",
		Action: models.ActionBuy,
	})
	router.Stop()

	assert.Empty(t, broker.published)
}

func TestRouter_HoldSignalsSkipped(t *testing.T) {
	broker := newFakeBroker()
	router := newTestRouter(t, broker, newTestCoordinator(t, "bullish"))

	broker.deliver(t, interfaces.TopicTradeSignals, models.TradeSignal{
		Ticker: "RELIANCE",
		Action: models.ActionHold,
	})
	router.Stop()

	assert.Empty(t, broker.published)
}

func TestRouter_NewsTriggerAlwaysPublishes(t *testing.T) {
	broker := newFakeBroker()
	// Bearish coverage would block a BUY signal, but news-triggered runs
	// skip the conflict check entirely.
	router := newTestRouter(t, broker, newTestCoordinator(t, "bearish"))

	broker.deliver(t, interfaces.TopicSummarizedNews, models.NewsMessage{
		Company:         "RELIANCE",
		Title:           "Regulator opens probe",
		LiquidityImpact: "HIGH_NEGATIVE",
	})
	router.Stop()

	reports := broker.reports(t)
	require.Len(t, reports, 1)
	report := reports[0]
	assert.True(t, report.ShouldPublish)
	require.NotNil(t, report.TriggerNews)
	assert.Equal(t, "Regulator opens probe", report.TriggerNews.Title)
	require.NotNil(t, report.Technical)
	require.NotNil(t, report.MonteCarlo)
	assert.Nil(t, report.News, "news already summarized; news path skips the news agent")
}

func TestRouter_LowImpactNewsSkipped(t *testing.T) {
	broker := newFakeBroker()
	router := newTestRouter(t, broker, newTestCoordinator(t, "bullish"))

	broker.deliver(t, interfaces.TopicSummarizedNews, models.NewsMessage{
		Company:         "RELIANCE",
		Title:           "Minor update",
		LiquidityImpact: "LOW",
	})
	router.Stop()

	assert.Empty(t, broker.published)
}

func TestRouter_UndecodableMessagesDropped(t *testing.T) {
	broker := newFakeBroker()
	router := newTestRouter(t, broker, newTestCoordinator(t, "bullish"))

	handler := broker.handlers[interfaces.TopicTradeSignals]
	require.NoError(t, handler(context.Background(), interfaces.BrokerMessage{
		Topic: interfaces.TopicTradeSignals,
		Value: []byte("not json"),
	}))
	router.Stop()

	assert.Empty(t, broker.published)
}

func TestSentimentConflictPolicy(t *testing.T) {
	policy := NewSentimentConflictPolicy()
	buy := &models.TradeSignal{Ticker: "RELIANCE", Action: models.ActionBuy}
	sell := &models.TradeSignal{Ticker: "RELIANCE", Action: models.ActionSell}

	conflict, reason := policy.Check(buy, &models.AnalysisReport{
		News: &models.NewsOutput{OverallSentiment: "bearish"},
	})
	assert.True(t, conflict)
	assert.Contains(t, reason, "bearish")

	conflict, _ = policy.Check(buy, &models.AnalysisReport{
		Twitter: &models.TwitterOutput{PostCount: 12, SentimentScore: 0.2},
	})
	assert.True(t, conflict)

	conflict, reason = policy.Check(sell, &models.AnalysisReport{
		News: &models.NewsOutput{OverallSentiment: "bullish"},
	})
	assert.True(t, conflict)
	assert.Contains(t, reason, "bullish")

	conflict, _ = policy.Check(sell, &models.AnalysisReport{
		Twitter: &models.TwitterOutput{PostCount: 12, SentimentScore: 0.9},
	})
	assert.True(t, conflict)

	// Neutral coverage and empty feeds never conflict.
	conflict, _ = policy.Check(buy, &models.AnalysisReport{
		News:    &models.NewsOutput{OverallSentiment: "neutral"},
		Twitter: &models.TwitterOutput{PostCount: 0, SentimentScore: 0.1},
	})
	assert.False(t, conflict)

	conflict, _ = policy.Check(&models.TradeSignal{Action: models.ActionHold}, &models.AnalysisReport{
		News: &models.NewsOutput{OverallSentiment: "bearish"},
	})
	assert.False(t, conflict)
}
