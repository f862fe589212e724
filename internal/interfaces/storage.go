package interfaces

import (
	"context"
	"time"

	"github.com/finpulse/finpulse/internal/models"
)

// KeyValueStorage is a small KV surface with native TTL support, used by the
// dedup layers and the bloom filter blob.
type KeyValueStorage interface {
	// Get returns the value for key or ErrKeyNotFound. Expired entries are
	// treated as missing.
	Get(ctx context.Context, key string) (string, error)

	// SetWithTTL stores key=value expiring after ttl (ttl<=0 means no expiry).
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// GetBytes/SetBytes store binary blobs without TTL.
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error

	// SortedAdd inserts member with score into the sorted set at key,
	// refreshing the set's TTL. SortedRecent returns up to limit members in
	// descending score order.
	SortedAdd(ctx context.Context, key, member string, score float64, ttl time.Duration) error
	SortedRecent(ctx context.Context, key string, limit int) ([]string, error)
}

// ArticleStorage covers the raw and enriched article collections plus the
// permanent URL registry.
type ArticleStorage interface {
	SaveRaw(ctx context.Context, article *models.RawArticle) error
	GetUnprocessed(ctx context.Context, limit int) ([]models.RawArticle, error)
	MarkProcessed(ctx context.Context, articleID string) error

	UpsertEnriched(ctx context.Context, article *models.Article) error
	GetEnriched(ctx context.Context, articleID string) (*models.Article, error)
	GetUnsummarized(ctx context.Context, limit int) ([]models.Article, error)
	MarkSummarized(ctx context.Context, articleID string) error

	RegisterURL(ctx context.Context, entry *models.URLRegistryEntry) error
	IsURLRegistered(ctx context.Context, urlHash string) (bool, error)
}

// ClusterStorage manages story clusters.
type ClusterStorage interface {
	Get(ctx context.Context, clusterID string) (*models.StoryCluster, error)
	Upsert(ctx context.Context, cluster *models.StoryCluster) error

	// AppendPublisher adds a publisher to an existing cluster: publishers
	// list grows by one, sources/urls are added as sets, article_count
	// increments by one.
	AppendPublisher(ctx context.Context, clusterID string, pub models.PublisherRef, source, url string) error
}

// SummaryStorage manages summarizer output documents.
type SummaryStorage interface {
	Upsert(ctx context.Context, summary *models.Summary) error
	Get(ctx context.Context, articleID string) (*models.Summary, error)
	Count(ctx context.Context) (int, error)

	// RecentByCompany returns up to limit summaries for the company,
	// newest published first.
	RecentByCompany(ctx context.Context, company string, limit int) ([]models.Summary, error)
}

// SignalStorage persists indicator snapshots, trade signals, and the
// universe collection.
type SignalStorage interface {
	SaveSnapshot(ctx context.Context, snap *models.IndicatorSnapshot) error
	SaveSignal(ctx context.Context, sig *models.TradeSignal) error
	RecentSignals(ctx context.Context, ticker string, limit int) ([]models.TradeSignal, error)
	UpsertUniverse(ctx context.Context, rows []models.UniverseRow) error
}

// PortfolioStorage persists portfolios and their immutable transaction log.
type PortfolioStorage interface {
	Get(ctx context.Context, portfolioID string) (*models.Portfolio, error)
	GetByUser(ctx context.Context, userID string) (*models.Portfolio, error)
	Save(ctx context.Context, portfolio *models.Portfolio) error
	AppendTransaction(ctx context.Context, txn *models.Transaction) error
	Transactions(ctx context.Context, portfolioID string) ([]models.Transaction, error)
}

// StorageManager aggregates all storage backends behind one handle.
type StorageManager interface {
	KV() KeyValueStorage
	Articles() ArticleStorage
	Clusters() ClusterStorage
	Summaries() SummaryStorage
	Signals() SignalStorage
	Portfolios() PortfolioStorage
	Close() error
}
