package interfaces

import (
	"context"
	"time"

	"github.com/finpulse/finpulse/internal/models"
)

// Dedup verdicts, ordered by check priority.
type DedupVerdict string

const (
	VerdictNew        DedupVerdict = "NEW"
	VerdictURLDup     DedupVerdict = "URL_DUP"
	VerdictContentDup DedupVerdict = "CONTENT_DUP"
	VerdictTitleDup   DedupVerdict = "TITLE_DUP"
)

// DedupResult carries the verdict plus the hashes computed along the way.
// ClusterID is set only on a fuzzy title match.
type DedupResult struct {
	Verdict     DedupVerdict
	URLHash     string
	ContentHash string
	ClusterID   string
}

// DedupService is the multi-layer duplicate detector: bloom fast path, exact
// KV reservations with 24h TTL, permanent URL registry, and fuzzy title
// matching per (company, day). Checks reserve on miss, so at most one caller
// observes NEW for a given key within the TTL window.
type DedupService interface {
	CheckURL(ctx context.Context, rawURL string) (DedupResult, error)
	CheckContent(ctx context.Context, content string) (DedupResult, error)
	CheckTitle(ctx context.Context, title, company string, publishedAt time.Time) (DedupResult, error)

	// CheckAndReserve runs all three layers in order and returns the first
	// duplicate verdict, or NEW with all keys reserved.
	CheckAndReserve(ctx context.Context, rawURL, title, content, company string, publishedAt time.Time) (DedupResult, error)

	// RegisterTitle records a title under its cluster for future fuzzy
	// matching. Called after the caller mints a new cluster id.
	RegisterTitle(ctx context.Context, title, company string, publishedAt time.Time, clusterID string) error

	// PersistBloom flushes the bloom filter to the KV store.
	PersistBloom(ctx context.Context) error
}

// FetcherService resolves and fetches an article body with publisher
// metadata. It never returns an error; empty content is a valid outcome.
type FetcherService interface {
	Fetch(ctx context.Context, rawURL string) models.FetchResult
	Close() error
}

// SentimentService classifies financial text.
type SentimentService interface {
	Analyze(ctx context.Context, text, title string) (models.Sentiment, error)
}

// SentimentClassifier is the black-box model endpoint behind
// SentimentService: one chunk in, class scores out.
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (map[string]float64, error)
}

// MarketDataClient is the broker market-data API surface.
type MarketDataClient interface {
	Candles(ctx context.Context, ticker, interval string, from, to time.Time) ([]models.Candle, error)
	LastPrice(ctx context.Context, ticker string) (float64, error)
}

// TickerResolver normalizes free-form company names to exchange symbols.
type TickerResolver interface {
	Resolve(ctx context.Context, names []string) []string
}

// PortfolioService applies transactions atomically per portfolio.
type PortfolioService interface {
	Initialize(ctx context.Context, userID string, cash float64, holdings []models.Holding) (*models.Portfolio, error)
	Apply(ctx context.Context, txn *models.Transaction) (*models.Portfolio, error)
	Get(ctx context.Context, portfolioID string) (*models.Portfolio, error)
	GetByUser(ctx context.Context, userID string) (*models.Portfolio, error)
}
