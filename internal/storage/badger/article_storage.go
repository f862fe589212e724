package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

// ArticleStorage implements interfaces.ArticleStorage over badgerhold.
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArticleStorage {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRaw upserts a scraped headline record.
func (s *ArticleStorage) SaveRaw(ctx context.Context, article *models.RawArticle) error {
	if article.ArticleID == "" {
		return fmt.Errorf("raw article missing article_id")
	}
	if article.ScrapedAt.IsZero() {
		article.ScrapedAt = time.Now().UTC()
	}
	if err := s.db.Store().Upsert(article.ArticleID, article); err != nil {
		return fmt.Errorf("failed to save raw article: %w", err)
	}
	return nil
}

// GetUnprocessed returns up to limit raw articles awaiting enrichment,
// oldest scrape first.
func (s *ArticleStorage) GetUnprocessed(ctx context.Context, limit int) ([]models.RawArticle, error) {
	var articles []models.RawArticle
	q := badgerhold.Where("Processed").Eq(false).SortBy("ScrapedAt")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := s.db.Store().Find(&articles, q); err != nil {
		return nil, fmt.Errorf("failed to find unprocessed articles: %w", err)
	}
	return articles, nil
}

// MarkProcessed flags a raw article as handled by the enricher.
func (s *ArticleStorage) MarkProcessed(ctx context.Context, articleID string) error {
	var article models.RawArticle
	err := s.db.Store().Get(articleID, &article)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrArticleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load raw article: %w", err)
	}

	now := time.Now().UTC()
	article.Processed = true
	article.ProcessedAt = &now

	if err := s.db.Store().Upsert(articleID, &article); err != nil {
		return fmt.Errorf("failed to mark article processed: %w", err)
	}
	return nil
}

// UpsertEnriched writes an enriched article keyed by article id. The URL
// unique index makes re-enrichment of the same URL idempotent.
func (s *ArticleStorage) UpsertEnriched(ctx context.Context, article *models.Article) error {
	if article.ArticleID == "" {
		return fmt.Errorf("enriched article missing article_id")
	}
	if err := s.db.Store().Upsert(article.ArticleID, article); err != nil {
		return fmt.Errorf("failed to upsert enriched article: %w", err)
	}
	return nil
}

// GetEnriched loads one enriched article.
func (s *ArticleStorage) GetEnriched(ctx context.Context, articleID string) (*models.Article, error) {
	var article models.Article
	err := s.db.Store().Get(articleID, &article)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enriched article: %w", err)
	}
	return &article, nil
}

// GetUnsummarized returns up to limit enriched articles the summarizer has
// not yet handled.
func (s *ArticleStorage) GetUnsummarized(ctx context.Context, limit int) ([]models.Article, error) {
	var articles []models.Article
	q := badgerhold.Where("Summarized").Eq(false).SortBy("EnrichedAt")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := s.db.Store().Find(&articles, q); err != nil {
		return nil, fmt.Errorf("failed to find unsummarized articles: %w", err)
	}
	return articles, nil
}

// MarkSummarized flags an enriched article as handled by the summarizer.
func (s *ArticleStorage) MarkSummarized(ctx context.Context, articleID string) error {
	var article models.Article
	err := s.db.Store().Get(articleID, &article)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrArticleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load enriched article: %w", err)
	}

	now := time.Now().UTC()
	article.Summarized = true
	article.SummarizedAt = &now

	if err := s.db.Store().Upsert(articleID, &article); err != nil {
		return fmt.Errorf("failed to mark article summarized: %w", err)
	}
	return nil
}

// RegisterURL records a URL hash permanently. Registering an already-known
// hash is a no-op.
func (s *ArticleStorage) RegisterURL(ctx context.Context, entry *models.URLRegistryEntry) error {
	if entry.ScrapedAt.IsZero() {
		entry.ScrapedAt = time.Now().UTC()
	}
	if err := s.db.Store().Upsert(entry.URLHash, entry); err != nil {
		return fmt.Errorf("failed to register url: %w", err)
	}
	return nil
}

// IsURLRegistered reports whether the URL hash has ever been seen.
func (s *ArticleStorage) IsURLRegistered(ctx context.Context, urlHash string) (bool, error) {
	var entry models.URLRegistryEntry
	err := s.db.Store().Get(urlHash, &entry)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check url registry: %w", err)
	}
	return true, nil
}
