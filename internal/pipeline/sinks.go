package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const defaultUniverseBatch = 50

// Sink receives every window emission. Emit must tolerate repeated calls
// from the runtime loop; Flush drains any buffered state.
type Sink interface {
	Emit(ctx context.Context, snap *models.IndicatorSnapshot, sig *models.TradeSignal) error
	Flush(ctx context.Context) error
}

// StoreSink persists snapshots and signals to the document store.
type StoreSink struct {
	signals interfaces.SignalStorage
}

func NewStoreSink(signals interfaces.SignalStorage) *StoreSink {
	return &StoreSink{signals: signals}
}

func (s *StoreSink) Emit(ctx context.Context, snap *models.IndicatorSnapshot, sig *models.TradeSignal) error {
	if err := s.signals.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := s.signals.SaveSignal(ctx, sig); err != nil {
		return fmt.Errorf("save signal: %w", err)
	}
	return nil
}

func (s *StoreSink) Flush(ctx context.Context) error { return nil }

// UniverseSink maintains the per-ticker latest-tick collection, buffering
// rows and bulk-upserting once the batch fills.
type UniverseSink struct {
	signals interfaces.SignalStorage
	batch   int

	mu   sync.Mutex
	rows map[string]models.UniverseRow
}

func NewUniverseSink(signals interfaces.SignalStorage, batch int) *UniverseSink {
	if batch <= 0 {
		batch = defaultUniverseBatch
	}
	return &UniverseSink{
		signals: signals,
		batch:   batch,
		rows:    make(map[string]models.UniverseRow),
	}
}

func (s *UniverseSink) Emit(ctx context.Context, snap *models.IndicatorSnapshot, sig *models.TradeSignal) error {
	s.mu.Lock()
	s.rows[snap.Ticker] = models.UniverseRow{
		Ticker:    snap.Ticker,
		Date:      snap.Date,
		Open:      snap.Open,
		High:      snap.High,
		Low:       snap.Low,
		Close:     snap.Close,
		Volume:    snap.Volume,
		AbsChange: snap.DayChange.Abs,
		PctChange: snap.DayChange.Pct,
	}
	full := len(s.rows) >= s.batch
	s.mu.Unlock()

	if full {
		return s.Flush(ctx)
	}
	return nil
}

func (s *UniverseSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.rows) == 0 {
		s.mu.Unlock()
		return nil
	}
	rows := make([]models.UniverseRow, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	s.rows = make(map[string]models.UniverseRow)
	s.mu.Unlock()

	if err := s.signals.UpsertUniverse(ctx, rows); err != nil {
		return fmt.Errorf("upsert universe: %w", err)
	}
	return nil
}

// CSVSink appends every signal to the history file, writing the header once
// on creation.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{
	"ticker", "date", "action", "close", "volume",
	"stop_loss", "take_profit", "limit_order", "signal_strength", "reason",
}

func NewCSVSink(path string) (*CSVSink, error) {
	info, err := os.Stat(path)
	fresh := err != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open history csv: %w", err)
	}

	s := &CSVSink{file: f, writer: csv.NewWriter(f)}
	if fresh {
		if err := s.writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		s.writer.Flush()
	}
	return s, nil
}

func (s *CSVSink) Emit(ctx context.Context, snap *models.IndicatorSnapshot, sig *models.TradeSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Write([]string{
		sig.Ticker,
		sig.Date,
		sig.Action,
		formatFloat(sig.ClosePrice),
		formatFloat(sig.Volume),
		formatFloat(sig.StopLoss),
		formatFloat(sig.TakeProfit),
		formatFloat(sig.LimitOrder),
		strconv.Itoa(sig.SignalStrength),
		sig.Reason,
	})
}

func (s *CSVSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and releases the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	return s.file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BrokerSink publishes actionable signals to the trade_signals topic keyed
// by ticker. HOLD emissions stay local.
type BrokerSink struct {
	producer interfaces.Producer
	logger   arbor.ILogger
}

func NewBrokerSink(producer interfaces.Producer, logger arbor.ILogger) *BrokerSink {
	return &BrokerSink{producer: producer, logger: logger}
}

func (s *BrokerSink) Emit(ctx context.Context, snap *models.IndicatorSnapshot, sig *models.TradeSignal) error {
	if sig.Action == models.ActionHold {
		return nil
	}
	s.logger.Info().
		Str("ticker", sig.Ticker).
		Str("action", sig.Action).
		Int("strength", sig.SignalStrength).
		Msg("Publishing trade signal")
	return s.producer.Publish(ctx, interfaces.TopicTradeSignals, sig.Ticker, sig)
}

func (s *BrokerSink) Flush(ctx context.Context) error {
	return s.producer.Flush(ctx)
}
