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

// PortfolioStorage implements interfaces.PortfolioStorage over badgerhold.
type PortfolioStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPortfolioStorage creates a new PortfolioStorage instance
func NewPortfolioStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PortfolioStorage {
	return &PortfolioStorage{
		db:     db,
		logger: logger,
	}
}

// Get loads a portfolio by id.
func (s *PortfolioStorage) Get(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	err := s.db.Store().Get(portfolioID, &portfolio)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &portfolio, nil
}

// GetByUser loads the portfolio owned by a user.
func (s *PortfolioStorage) GetByUser(ctx context.Context, userID string) (*models.Portfolio, error) {
	var portfolios []models.Portfolio
	err := s.db.Store().Find(&portfolios, badgerhold.Where("UserID").Eq(userID).Index("UserID").Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio by user: %w", err)
	}
	if len(portfolios) == 0 {
		return nil, interfaces.ErrPortfolioNotFound
	}
	return &portfolios[0], nil
}

// Save writes the full portfolio document.
func (s *PortfolioStorage) Save(ctx context.Context, portfolio *models.Portfolio) error {
	if portfolio.PortfolioID == "" {
		return fmt.Errorf("portfolio missing portfolio_id")
	}
	portfolio.LastUpdated = time.Now().UTC()
	if err := s.db.Store().Upsert(portfolio.PortfolioID, portfolio); err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}
	return nil
}

// AppendTransaction records an immutable transaction log entry. Inserting
// an existing transaction id is an error, preserving immutability.
func (s *PortfolioStorage) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.TransactionID == "" {
		return fmt.Errorf("transaction missing transaction_id")
	}
	if err := s.db.Store().Insert(txn.TransactionID, txn); err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Transactions lists the transaction log for a portfolio, oldest first.
func (s *PortfolioStorage) Transactions(ctx context.Context, portfolioID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	q := badgerhold.Where("PortfolioID").Eq(portfolioID).Index("PortfolioID").SortBy("Timestamp")
	if err := s.db.Store().Find(&txns, q); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}
