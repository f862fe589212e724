package enricher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
	"github.com/finpulse/finpulse/internal/services/dedup"
	storage "github.com/finpulse/finpulse/internal/storage/badger"
)

type fakeFetcher struct {
	result models.FetchResult
}

func (f *fakeFetcher) Fetch(context.Context, string) models.FetchResult { return f.result }
func (f *fakeFetcher) Close() error                                     { return nil }

type fakeSentiment struct {
	result models.Sentiment
}

func (f *fakeSentiment) Analyze(context.Context, string, string) (models.Sentiment, error) {
	return f.result, nil
}

func positiveSentiment(score float64) models.Sentiment {
	return models.Sentiment{Label: models.SentimentPositive, Score: score, Confidence: models.ConfidenceHigh}
}

func newTestEnricher(t *testing.T, fetcher *fakeFetcher, sentiment *fakeSentiment) (*Service, interfaces.StorageManager) {
	t.Helper()
	mgr, err := storage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	dedupSvc := dedup.NewService(mgr.KV(), mgr.Articles(), common.GetLogger())
	svc := NewService(mgr, dedupSvc, fetcher, sentiment,
		&common.EnricherConfig{PollInterval: "5s", BatchSize: 50, Concurrency: 20}, common.GetLogger())
	return svc, mgr
}

func rawArticle(id, url, title string) *models.RawArticle {
	return &models.RawArticle{
		ArticleID:   id,
		URL:         url,
		Title:       title,
		Source:      "moneycontrol",
		Company:     "reliance",
		FactorType:  "economic",
		PublishedAt: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
		ScrapedAt:   time.Now().UTC(),
	}
}

func longBody(seed string) string {
	return strings.Repeat(seed+" reported strong quarterly results with rising revenue. ", 10)
}

func TestLiquidityImpact(t *testing.T) {
	assert.Equal(t, models.ImpactHighPositive, LiquidityImpact(models.Sentiment{Label: "positive", Score: 0.9}))
	assert.Equal(t, models.ImpactModeratePositive, LiquidityImpact(models.Sentiment{Label: "positive", Score: 0.8}))
	assert.Equal(t, models.ImpactHighNegative, LiquidityImpact(models.Sentiment{Label: "negative", Score: 0.85}))
	assert.Equal(t, models.ImpactModerateNegative, LiquidityImpact(models.Sentiment{Label: "negative", Score: 0.6}))
	assert.Equal(t, models.ImpactNeutral, LiquidityImpact(models.Sentiment{Label: "neutral", Score: 0.9}))
}

func TestDetectCriticalEvents(t *testing.T) {
	events := DetectCriticalEvents("Reliance Q2 earnings beat", "The board approved a special dividend payout.")
	assert.Contains(t, events, "earnings")
	assert.Contains(t, events, "dividend")
	assert.NotContains(t, events, "lawsuit")

	assert.Empty(t, DetectCriticalEvents("Weather update", "Rain expected over the weekend."))
}

func TestGenerateDecisions(t *testing.T) {
	decisions := GenerateDecisions(
		models.Sentiment{Label: "positive", Score: 0.9},
		models.ImpactHighPositive,
		[]string{"earnings", "merger_acquisition"},
		"economic",
	)
	assert.Equal(t, []string{"CONSIDER_BUY", "HIGH_VOLATILITY_EXPECTED", "EARNINGS_ALERT", "M&A_ALERT", "ECONOMIC_FACTOR"}, decisions)

	hold := GenerateDecisions(models.Sentiment{Label: "neutral", Score: 0.9}, models.ImpactNeutral, nil, "company")
	assert.Equal(t, []string{"HOLD_MONITOR"}, hold)

	sell := GenerateDecisions(models.Sentiment{Label: "negative", Score: 0.75}, models.ImpactModerateNegative, []string{"lawsuit"}, "regulatory")
	assert.Equal(t, []string{"CONSIDER_SELL", "RISK_ALERT", "REGULATORY_FACTOR"}, sell)
}

func TestGenerateClusterID(t *testing.T) {
	day := time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC)
	id := GenerateClusterID("reliance profit jumps 12 in q2", "reliance", "economic", day)
	assert.True(t, strings.HasPrefix(id, "cluster_reliance_economic_2026-08-24_"))
	// Deterministic
	assert.Equal(t, id, GenerateClusterID("reliance profit jumps 12 in q2", "reliance", "economic", day))
	// Untitled fallback still yields a stable id
	assert.True(t, strings.HasPrefix(GenerateClusterID("", "tcs", "company", day), "cluster_tcs_company_2026-08-24_"))
}

func TestProcessArticle_UniqueFlow(t *testing.T) {
	fetcher := &fakeFetcher{result: models.FetchResult{
		Content:       longBody("Reliance"),
		FinalURL:      "https://news.example.com/reliance-q2",
		PublisherName: "Example News",
	}}
	svc, mgr := newTestEnricher(t, fetcher, &fakeSentiment{result: positiveSentiment(0.9)})
	ctx := context.Background()

	raw := rawArticle("art-1", "https://news.example.com/reliance-q2?utm_source=x", "Reliance profit jumps 12 percent in Q2")
	require.True(t, svc.ProcessArticle(ctx, raw))

	enriched, err := mgr.Articles().GetEnriched(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentPositive, enriched.SentimentLabel)
	assert.Equal(t, models.ImpactHighPositive, enriched.LiquidityImpact)
	assert.Contains(t, enriched.Decisions, "CONSIDER_BUY")
	assert.Equal(t, models.QualityGood, enriched.ContentQuality)
	assert.False(t, enriched.Summarized)

	cluster, err := mgr.Clusters().Get(ctx, enriched.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, 1, cluster.ArticleCount)
	assert.Equal(t, []string{"moneycontrol"}, cluster.Sources)
}

func TestProcessArticle_URLDuplicateSkips(t *testing.T) {
	fetcher := &fakeFetcher{result: models.FetchResult{Content: longBody("Reliance")}}
	svc, mgr := newTestEnricher(t, fetcher, &fakeSentiment{result: positiveSentiment(0.9)})
	ctx := context.Background()

	first := rawArticle("art-1", "https://news.example.com/story", "Reliance profit jumps 12 percent in Q2")
	require.True(t, svc.ProcessArticle(ctx, first))

	second := rawArticle("art-2", "https://news.example.com/story?utm_source=twitter", "Reliance profit jumps 12 percent in Q2")
	require.True(t, svc.ProcessArticle(ctx, second))

	_, err := mgr.Articles().GetEnriched(ctx, "art-2")
	assert.Error(t, err, "duplicate must not produce a second enriched article")
}

func TestProcessArticle_TitleDuplicateAppendsPublisher(t *testing.T) {
	fetcher := &fakeFetcher{result: models.FetchResult{
		Content:       longBody("Reliance"),
		PublisherName: "Example News",
	}}
	svc, mgr := newTestEnricher(t, fetcher, &fakeSentiment{result: positiveSentiment(0.9)})
	ctx := context.Background()

	first := rawArticle("art-1", "https://a.example.com/story", "Reliance profit jumps 12 percent in Q2")
	require.True(t, svc.ProcessArticle(ctx, first))

	enriched, err := mgr.Articles().GetEnriched(ctx, "art-1")
	require.NoError(t, err)

	// Different URL and body, near-identical headline from another outlet.
	fetcher.result = models.FetchResult{
		Content:       strings.Repeat("An entirely different writeup of the same story. ", 10),
		PublisherName: "Other Wire",
	}
	second := rawArticle("art-2", "https://b.example.com/story", "Reliance Profit Jumps 12% in Q2 Results")
	require.True(t, svc.ProcessArticle(ctx, second))

	cluster, err := mgr.Clusters().Get(ctx, enriched.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, 2, cluster.ArticleCount)
	assert.Len(t, cluster.Publishers, 2)

	_, err = mgr.Articles().GetEnriched(ctx, "art-2")
	assert.Error(t, err, "clustered duplicate must not produce its own article")
}

func TestProcessArticle_EmptyContentFallsBackToTitle(t *testing.T) {
	fetcher := &fakeFetcher{result: models.FetchResult{}}
	svc, mgr := newTestEnricher(t, fetcher, &fakeSentiment{result: positiveSentiment(0.6)})
	ctx := context.Background()

	raw := rawArticle("art-1", "https://news.example.com/thin", "Reliance profit jumps 12 percent in Q2")
	require.True(t, svc.ProcessArticle(ctx, raw))

	enriched, err := mgr.Articles().GetEnriched(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, raw.Title, enriched.Content)
	assert.Equal(t, models.QualityPoor, enriched.ContentQuality)
	assert.Empty(t, enriched.ContentHash)
}

func TestProcessBatch_MarksProcessed(t *testing.T) {
	fetcher := &fakeFetcher{result: models.FetchResult{Content: longBody("Reliance")}}
	svc, mgr := newTestEnricher(t, fetcher, &fakeSentiment{result: positiveSentiment(0.9)})
	ctx := context.Background()

	require.NoError(t, mgr.Articles().SaveRaw(ctx, rawArticle("art-1", "https://a.example.com/1", "Reliance profit jumps 12 percent in Q2")))
	require.NoError(t, mgr.Articles().SaveRaw(ctx, rawArticle("art-2", "https://a.example.com/2", "TCS announces hiring drive across Europe")))

	require.NoError(t, svc.ProcessBatch(ctx))

	remaining, err := mgr.Articles().GetUnprocessed(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
