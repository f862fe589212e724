// Package portfolio applies transactions to portfolios atomically and keeps
// the derived valuation fields consistent.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const defaultCurrency = "INR"

// Service implements interfaces.PortfolioService. A per-portfolio mutex
// serializes Apply calls so concurrent transactions cannot interleave reads
// and writes of the same document.
type Service struct {
	store    interfaces.PortfolioStorage
	currency string
	validate *validator.Validate
	logger   arbor.ILogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ interfaces.PortfolioService = (*Service)(nil)

func NewService(store interfaces.PortfolioStorage, config *common.PortfolioConfig, logger arbor.ILogger) *Service {
	currency := defaultCurrency
	if config != nil && config.Currency != "" {
		currency = config.Currency
	}
	return &Service{
		store:    store,
		currency: currency,
		validate: validator.New(),
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Initialize creates a portfolio for the user with starting cash and
// optional seed holdings, valuations computed up front.
func (s *Service) Initialize(ctx context.Context, userID string, cash float64, holdings []models.Holding) (*models.Portfolio, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if cash < 0 {
		return nil, fmt.Errorf("starting cash cannot be negative")
	}

	portfolio := &models.Portfolio{
		PortfolioID: uuid.NewString(),
		UserID:      userID,
		Cash:        cash,
		Currency:    s.currency,
		Holdings:    append([]models.Holding(nil), holdings...),
	}
	recompute(portfolio)

	if err := s.store.Save(ctx, portfolio); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("portfolio_id", portfolio.PortfolioID).
		Str("user_id", userID).
		Float64("cash", cash).
		Int("holdings", len(holdings)).
		Msg("Portfolio initialized")
	return portfolio, nil
}

// Apply validates the transaction, mutates the portfolio under its lock,
// appends the immutable log entry, and saves the recomputed document.
func (s *Service) Apply(ctx context.Context, txn *models.Transaction) (*models.Portfolio, error) {
	if txn.PortfolioID == "" {
		return nil, fmt.Errorf("transaction missing portfolio_id")
	}
	if err := s.validate.Struct(txn); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}

	lock := s.lockFor(txn.PortfolioID)
	lock.Lock()
	defer lock.Unlock()

	portfolio, err := s.store.Get(ctx, txn.PortfolioID)
	if err != nil {
		return nil, err
	}

	if err := applyTransaction(portfolio, txn); err != nil {
		return nil, err
	}
	recompute(portfolio)

	if txn.TransactionID == "" {
		txn.TransactionID = uuid.NewString()
	}
	if txn.Timestamp.IsZero() {
		txn.Timestamp = time.Now().UTC()
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, portfolio); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("portfolio_id", txn.PortfolioID).
		Str("ticker", txn.Ticker).
		Str("action", txn.Action).
		Float64("quantity", txn.Quantity).
		Float64("price", txn.Price).
		Msg("Transaction applied")
	return portfolio, nil
}

func (s *Service) Get(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	return s.store.Get(ctx, portfolioID)
}

func (s *Service) GetByUser(ctx context.Context, userID string) (*models.Portfolio, error) {
	return s.store.GetByUser(ctx, userID)
}

func (s *Service) lockFor(portfolioID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[portfolioID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[portfolioID] = lock
	}
	return lock
}

// applyTransaction mutates cash and holdings. Validation failures leave the
// portfolio untouched because rejections happen before any write.
func applyTransaction(p *models.Portfolio, txn *models.Transaction) error {
	holding := p.FindHolding(txn.Ticker)

	switch txn.Action {
	case models.TxnBuy:
		cost := txn.Quantity*txn.Price + txn.Fees
		if p.Cash < cost {
			return fmt.Errorf("%w: need %.2f, have %.2f", interfaces.ErrInsufficientFunds, cost, p.Cash)
		}
		p.Cash -= cost
		if holding == nil {
			sector := txn.Sector
			if sector == "" {
				sector = "Unknown"
			}
			beta := txn.Beta
			if beta == 0 {
				beta = 1.0
			}
			p.Holdings = append(p.Holdings, models.Holding{
				Ticker:       txn.Ticker,
				Quantity:     txn.Quantity,
				AvgCost:      txn.Price,
				CurrentPrice: txn.Price,
				Sector:       sector,
				Beta:         beta,
			})
		} else {
			total := holding.Quantity + txn.Quantity
			holding.AvgCost = (holding.Quantity*holding.AvgCost + txn.Quantity*txn.Price) / total
			holding.Quantity = total
			holding.CurrentPrice = txn.Price
		}

	case models.TxnSell:
		if holding == nil {
			return fmt.Errorf("%w: %s", interfaces.ErrHoldingNotFound, txn.Ticker)
		}
		if holding.Quantity < txn.Quantity {
			return fmt.Errorf("%w: have %.2f, selling %.2f", interfaces.ErrInsufficientShares, holding.Quantity, txn.Quantity)
		}
		p.Cash += txn.Quantity*txn.Price - txn.Fees
		holding.Quantity -= txn.Quantity
		holding.CurrentPrice = txn.Price
		if holding.Quantity == 0 {
			removeHolding(p, txn.Ticker)
		}

	case models.TxnDividend:
		// Price is the per-share payout.
		p.Cash += txn.Quantity*txn.Price - txn.Fees

	case models.TxnSplit:
		if holding == nil {
			return fmt.Errorf("%w: %s", interfaces.ErrHoldingNotFound, txn.Ticker)
		}
		// Quantity is the split factor, e.g. 2 for a 2-for-1 split.
		holding.Quantity *= txn.Quantity
		holding.AvgCost /= txn.Quantity
		holding.CurrentPrice /= txn.Quantity

	default:
		return fmt.Errorf("unknown transaction action %q", txn.Action)
	}
	return nil
}

func removeHolding(p *models.Portfolio, ticker string) {
	for i := range p.Holdings {
		if p.Holdings[i].Ticker == ticker {
			p.Holdings = append(p.Holdings[:i], p.Holdings[i+1:]...)
			return
		}
	}
}

// recompute rebuilds every derived field: market values, unrealized PnL,
// total value, weights, sector exposures, and the weighted portfolio beta.
func recompute(p *models.Portfolio) {
	total := p.Cash
	for i := range p.Holdings {
		h := &p.Holdings[i]
		h.MarketValue = h.Quantity * h.CurrentPrice
		h.UnrealizedPnL = h.MarketValue - h.Quantity*h.AvgCost
		total += h.MarketValue
	}
	p.TotalValue = total

	p.SectorExposures = make(map[string]float64)
	p.PortfolioBeta = 0
	for i := range p.Holdings {
		h := &p.Holdings[i]
		if total > 0 {
			h.Weight = h.MarketValue / total
		} else {
			h.Weight = 0
		}
		if h.Sector != "" {
			p.SectorExposures[h.Sector] += h.Weight
		}
		p.PortfolioBeta += h.Weight * h.Beta
	}
}
