package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const offHoursSleep = 60 * time.Second

// Subject produces the candle stream the runtime consumes. Run blocks until
// the source is exhausted or the context is cancelled.
type Subject interface {
	Run(ctx context.Context, out chan<- models.Candle) error
}

// LiveSubject polls the broker market-data API per ticker while the exchange
// is trading; outside hours it idles.
type LiveSubject struct {
	client    interfaces.MarketDataClient
	gate      *MarketGate
	tickers   []string
	interval  string
	pollDelay time.Duration
	logger    arbor.ILogger

	lastSeen map[string]time.Time
}

func NewLiveSubject(client interfaces.MarketDataClient, gate *MarketGate, tickers []string, interval string, pollDelay time.Duration, logger arbor.ILogger) *LiveSubject {
	return &LiveSubject{
		client:    client,
		gate:      gate,
		tickers:   tickers,
		interval:  interval,
		pollDelay: pollDelay,
		logger:    logger,
		lastSeen:  make(map[string]time.Time),
	}
}

func (s *LiveSubject) Run(ctx context.Context, out chan<- models.Candle) error {
	span := intervalDuration(s.interval)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := time.Now()
		if !s.gate.Open(now) {
			s.logger.Debug().Msg("Market closed, idling")
			if !sleepCtx(ctx, offHoursSleep) {
				return ctx.Err()
			}
			continue
		}

		for _, ticker := range s.tickers {
			from := s.lastSeen[ticker]
			if from.IsZero() {
				from = now.Add(-2 * span)
			}
			candles, err := s.client.Candles(ctx, ticker, s.interval, from, now)
			if err != nil {
				s.logger.Warn().Str("ticker", ticker).Err(err).Msg("Candle poll failed")
			}
			for _, c := range candles {
				if !c.Timestamp.After(s.lastSeen[ticker]) {
					continue
				}
				s.lastSeen[ticker] = c.Timestamp
				select {
				case out <- c:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if !sleepCtx(ctx, s.pollDelay) {
				return ctx.Err()
			}
		}
	}
}

// ReplaySubject streams candles out of a CSV file row by row, pausing
// between rows to approximate a live feed. Expected columns:
// ticker,timestamp,open,high,low,close,volume with RFC3339 timestamps.
type ReplaySubject struct {
	path   string
	delay  time.Duration
	logger arbor.ILogger
}

func NewReplaySubject(path string, delay time.Duration, logger arbor.ILogger) *ReplaySubject {
	return &ReplaySubject{path: path, delay: delay, logger: logger}
}

func (s *ReplaySubject) Run(ctx context.Context, out chan<- models.Candle) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open replay csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 7

	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			s.logger.Info().Int("rows", rows).Msg("Replay finished")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read replay csv: %w", err)
		}
		if record[0] == "ticker" {
			continue // header
		}

		candle, err := parseCandle(record)
		if err != nil {
			s.logger.Warn().Int("row", rows).Err(err).Msg("Skipping malformed replay row")
			continue
		}
		select {
		case out <- candle:
		case <-ctx.Done():
			return ctx.Err()
		}
		rows++
		if !sleepCtx(ctx, s.delay) {
			return ctx.Err()
		}
	}
}

func parseCandle(record []string) (models.Candle, error) {
	ts, err := time.Parse(time.RFC3339, record[1])
	if err != nil {
		return models.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	vals := make([]float64, 5)
	for i, raw := range record[2:7] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}
	return models.Candle{
		Ticker:    record[0],
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// intervalDuration maps broker interval names to bar durations.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "minute":
		return time.Minute
	case "3minute":
		return 3 * time.Minute
	case "5minute":
		return 5 * time.Minute
	case "10minute":
		return 10 * time.Minute
	case "15minute":
		return 15 * time.Minute
	case "30minute":
		return 30 * time.Minute
	case "60minute":
		return time.Hour
	case "day":
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// sleepCtx waits for d or context cancellation, reporting false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
