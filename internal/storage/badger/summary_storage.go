package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

// SummaryStorage implements interfaces.SummaryStorage over badgerhold.
type SummaryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSummaryStorage creates a new SummaryStorage instance
func NewSummaryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SummaryStorage {
	return &SummaryStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert writes a summary document keyed by article id.
func (s *SummaryStorage) Upsert(ctx context.Context, summary *models.Summary) error {
	if summary.ArticleID == "" {
		return fmt.Errorf("summary missing article_id")
	}
	if err := s.db.Store().Upsert(summary.ArticleID, summary); err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// Get loads one summary document.
func (s *SummaryStorage) Get(ctx context.Context, articleID string) (*models.Summary, error) {
	var summary models.Summary
	err := s.db.Store().Get(articleID, &summary)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &summary, nil
}

// RecentByCompany returns up to limit summaries for the company, newest
// published first.
func (s *SummaryStorage) RecentByCompany(ctx context.Context, company string, limit int) ([]models.Summary, error) {
	var summaries []models.Summary
	query := badgerhold.Where("Company").Eq(company).Index("Company").
		SortBy("PublishedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&summaries, query); err != nil {
		return nil, fmt.Errorf("failed to query summaries for %s: %w", company, err)
	}
	return summaries, nil
}

// Count returns the number of stored summaries.
func (s *SummaryStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Summary{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count summaries: %w", err)
	}
	return int(count), nil
}
