package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
	storage "github.com/finpulse/finpulse/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, interfaces.KeyValueStorage, interfaces.ArticleStorage) {
	t.Helper()
	db, err := storage.NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := storage.NewKVStorage(db, common.GetLogger())
	articles := storage.NewArticleStorage(db, common.GetLogger())
	return NewService(kv, articles, common.GetLogger()), kv, articles
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"https://X.com/a?utm_source=twitter", "https://x.com/a"},
		{"https://x.com/a?utm_source=fb", "https://x.com/a"},
		{"https://example.com/path/?fbclid=abc&id=5", "https://example.com/path?id=5"},
		{"http://News.Site.com/story#section", "http://news.site.com/story"},
		{"https://example.com/a/", "https://example.com/a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, NormalizeURL(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "reliance profit jumps 12 in q2 results", NormalizeTitle("Reliance Profit Jumps 12% in Q2 Results!"))
	// Too short after normalization
	assert.Equal(t, "", NormalizeTitle("Q2: up!"))
	assert.Equal(t, "", NormalizeTitle("   "))
}

func TestCheckURL_TrackingParamsCollapse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CheckURL(ctx, "https://x.com/a?utm_source=twitter")
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictNew, first.Verdict)

	second, err := svc.CheckURL(ctx, "https://x.com/a?utm_source=fb")
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictURLDup, second.Verdict)
	assert.Equal(t, first.URLHash, second.URLHash)
}

func TestCheckURL_AtMostOneNew(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	newCount := 0
	for i := 0; i < 10; i++ {
		result, err := svc.CheckURL(ctx, "https://example.com/story-42")
		require.NoError(t, err)
		if result.Verdict == interfaces.VerdictNew {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount, "only the first check may observe NEW")
}

func TestCheckURL_RegistryBacksBloom(t *testing.T) {
	svc, kv, articles := newTestService(t)
	ctx := context.Background()

	result, err := svc.CheckURL(ctx, "https://example.com/registered")
	require.NoError(t, err)
	require.Equal(t, interfaces.VerdictNew, result.Verdict)

	require.NoError(t, articles.RegisterURL(ctx, &models.URLRegistryEntry{URLHash: result.URLHash, ArticleID: "art-x"}))

	// Simulate KV reservation expiry: the permanent registry still wins.
	require.NoError(t, kv.Delete(ctx, "url:"+result.URLHash))

	again, err := svc.CheckURL(ctx, "https://example.com/registered")
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictURLDup, again.Verdict)
}

func TestCheckContent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	long := ""
	for i := 0; i < 60; i++ {
		long += fmt.Sprintf("sentence %d about quarterly results. ", i)
	}

	first, err := svc.CheckContent(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictNew, first.Verdict)
	assert.NotEmpty(t, first.ContentHash)

	// Same first 1000 chars, different tail
	second, err := svc.CheckContent(ctx, long+"extra trailing paragraph")
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictContentDup, second.Verdict)
}

func TestCheckContent_ShortContentSkipped(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.CheckContent(context.Background(), "too short to hash")
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictNew, result.Verdict)
	assert.Empty(t, result.ContentHash)
}

func TestCheckTitle_FuzzyMatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RegisterTitle(ctx, "Reliance profit jumps 12 percent in Q2", "reliance", day, "cluster_abc"))

	result, err := svc.CheckTitle(ctx, "Reliance Profit Jumps 12% in Q2 Results", "reliance", day)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictTitleDup, result.Verdict)
	assert.Equal(t, "cluster_abc", result.ClusterID)
}

func TestCheckTitle_DifferentStoryNoMatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RegisterTitle(ctx, "Reliance profit jumps 12 percent in Q2", "reliance", day, "cluster_abc"))

	result, err := svc.CheckTitle(ctx, "TCS announces massive hiring drive across Europe", "reliance", day)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictNew, result.Verdict)
}

func TestCheckTitle_ScopedByCompanyAndDay(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RegisterTitle(ctx, "Reliance profit jumps 12 percent in Q2", "reliance", day, "cluster_abc"))

	// Same title, different company namespace
	other, err := svc.CheckTitle(ctx, "Reliance profit jumps 12 percent in Q2", "tcs", day)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictNew, other.Verdict)

	// Same title, next day
	nextDay, err := svc.CheckTitle(ctx, "Reliance profit jumps 12 percent in Q2", "reliance", day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictNew, nextDay.Verdict)
}

func TestCheckAndReserve_Order(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	content := ""
	for i := 0; i < 40; i++ {
		content += "a long enough body of article text to hash properly. "
	}

	first, err := svc.CheckAndReserve(ctx, "https://n.com/a", "Reliance profit jumps 12 percent in Q2", content, "reliance", day)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictNew, first.Verdict)
	assert.NotEmpty(t, first.URLHash)
	assert.NotEmpty(t, first.ContentHash)

	// Different URL, same content
	second, err := svc.CheckAndReserve(ctx, "https://n.com/b", "Some other headline entirely here", content, "reliance", day)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictContentDup, second.Verdict)

	// Different URL and content, near-identical title
	require.NoError(t, svc.RegisterTitle(ctx, "Reliance profit jumps 12 percent in Q2", "reliance", day, "cluster_q2"))
	otherContent := ""
	for i := 0; i < 40; i++ {
		otherContent += fmt.Sprintf("distinct paragraph %d with different words. ", i)
	}
	third, err := svc.CheckAndReserve(ctx, "https://n.com/c", "Reliance Profit Jumps 12% in Q2 Results", otherContent, "reliance", day)
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictTitleDup, third.Verdict)
	assert.Equal(t, "cluster_q2", third.ClusterID)
}

func TestPersistBloom_SurvivesRestart(t *testing.T) {
	db, err := storage.NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	kv := storage.NewKVStorage(db, common.GetLogger())
	articles := storage.NewArticleStorage(db, common.GetLogger())
	ctx := context.Background()

	svc := NewService(kv, articles, common.GetLogger())
	result, err := svc.CheckURL(ctx, "https://example.com/persisted")
	require.NoError(t, err)
	require.Equal(t, interfaces.VerdictNew, result.Verdict)
	require.NoError(t, svc.PersistBloom(ctx))

	// New service over the same store loads the persisted filter, and the
	// KV reservation still flags the duplicate.
	svc2 := NewService(kv, articles, common.GetLogger())
	again, err := svc2.CheckURL(ctx, "https://example.com/persisted")
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictURLDup, again.Verdict)
}
