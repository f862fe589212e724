package models

import "time"

// Transaction actions.
const (
	TxnBuy      = "BUY"
	TxnSell     = "SELL"
	TxnDividend = "DIVIDEND"
	TxnSplit    = "SPLIT"
)

// Holding is one position within a portfolio.
//
// Invariants: MarketValue == Quantity*CurrentPrice and
// UnrealizedPnL == MarketValue - Quantity*AvgCost. A holding is removed from
// the portfolio when its quantity reaches zero.
type Holding struct {
	Ticker        string  `json:"ticker"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Weight        float64 `json:"weight"`
	Beta          float64 `json:"beta"`
	Sector        string  `json:"sector"`
}

// Portfolio is the aggregate account state, mutated only through
// transactions.
//
// Wealth conservation: TotalValue == Cash + sum of holding market values,
// and holding weights plus the cash share sum to 1.
type Portfolio struct {
	PortfolioID     string             `json:"portfolio_id" badgerhold:"key"`
	UserID          string             `json:"user_id" badgerhold:"index"`
	Cash            float64            `json:"cash"`
	TotalValue      float64            `json:"total_value"`
	Currency        string             `json:"currency"`
	PortfolioBeta   float64            `json:"portfolio_beta"`
	SectorExposures map[string]float64 `json:"sector_exposures"`
	Holdings        []Holding          `json:"holdings"`
	LastUpdated     time.Time          `json:"last_updated"`
}

// FindHolding returns a pointer into Holdings for the ticker, or nil.
func (p *Portfolio) FindHolding(ticker string) *Holding {
	for i := range p.Holdings {
		if p.Holdings[i].Ticker == ticker {
			return &p.Holdings[i]
		}
	}
	return nil
}

// Transaction is an immutable portfolio mutation record.
type Transaction struct {
	TransactionID string    `json:"transaction_id" badgerhold:"key"`
	PortfolioID   string    `json:"portfolio_id" badgerhold:"index"`
	Ticker        string    `json:"ticker"`
	Action        string    `json:"action" validate:"required,oneof=BUY SELL DIVIDEND SPLIT"`
	Quantity      float64   `json:"quantity" validate:"gt=0"`
	Price         float64   `json:"price" validate:"gte=0"`
	Fees          float64   `json:"fees" validate:"gte=0"`
	// Sector and Beta seed the holding created by a first BUY of a ticker.
	// Missing metadata defaults to sector "Unknown" and beta 1.0.
	Sector    string    `json:"sector,omitempty"`
	Beta      float64   `json:"beta,omitempty" validate:"gte=0"`
	Timestamp time.Time `json:"timestamp"`
}
