package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

// SignalStorage implements interfaces.SignalStorage over badgerhold.
type SignalStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSignalStorage creates a new SignalStorage instance
func NewSignalStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SignalStorage {
	return &SignalStorage{
		db:     db,
		logger: logger,
	}
}

// SaveSnapshot inserts an indicator snapshot with a sequence-assigned key.
func (s *SignalStorage) SaveSnapshot(ctx context.Context, snap *models.IndicatorSnapshot) error {
	if err := s.db.Store().Insert(badgerhold.NextSequence(), snap); err != nil {
		return fmt.Errorf("failed to save indicator snapshot: %w", err)
	}
	return nil
}

// SaveSignal inserts a trade signal with a sequence-assigned key.
func (s *SignalStorage) SaveSignal(ctx context.Context, sig *models.TradeSignal) error {
	if err := s.db.Store().Insert(badgerhold.NextSequence(), sig); err != nil {
		return fmt.Errorf("failed to save trade signal: %w", err)
	}
	return nil
}

// RecentSignals returns the latest signals for a ticker, newest first.
func (s *SignalStorage) RecentSignals(ctx context.Context, ticker string, limit int) ([]models.TradeSignal, error) {
	var signals []models.TradeSignal
	q := badgerhold.Where("Ticker").Eq(ticker).Index("Ticker").SortBy("ID").Reverse()
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := s.db.Store().Find(&signals, q); err != nil {
		return nil, fmt.Errorf("failed to find signals: %w", err)
	}
	return signals, nil
}

// UpsertUniverse bulk-upserts latest-tick rows keyed by ticker.
func (s *SignalStorage) UpsertUniverse(ctx context.Context, rows []models.UniverseRow) error {
	for i := range rows {
		if rows[i].Ticker == "" {
			continue
		}
		if err := s.db.Store().Upsert(rows[i].Ticker, &rows[i]); err != nil {
			return fmt.Errorf("failed to upsert universe row %s: %w", rows[i].Ticker, err)
		}
	}
	return nil
}
