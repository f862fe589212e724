package indicators

import (
	"sort"
	"time"

	"github.com/finpulse/finpulse/internal/models"
)

// Window accumulates one ticker's candles for a sliding window and computes
// the full indicator snapshot on demand. Bars are kept sorted by timestamp
// with insertion order breaking ties.
type Window struct {
	Ticker string
	Bars   []models.Candle
}

func NewWindow(ticker string) *Window {
	return &Window{Ticker: ticker}
}

// Add inserts a candle in timestamp order, after any equal timestamps so
// insertion order is stable. Bars failing date sanity are dropped.
func (w *Window) Add(c models.Candle) bool {
	if !c.ValidDate() {
		return false
	}
	idx := sort.Search(len(w.Bars), func(i int) bool {
		return w.Bars[i].Timestamp.After(c.Timestamp)
	})
	w.Bars = append(w.Bars, models.Candle{})
	copy(w.Bars[idx+1:], w.Bars[idx:])
	w.Bars[idx] = c
	return true
}

// Merge absorbs another window's bars.
func (w *Window) Merge(other *Window) {
	for _, b := range other.Bars {
		w.Add(b)
	}
}

// RetractBefore drops bars older than the cutoff, returning how many were
// removed.
func (w *Window) RetractBefore(cutoff time.Time) int {
	idx := sort.Search(len(w.Bars), func(i int) bool {
		return !w.Bars[i].Timestamp.Before(cutoff)
	})
	if idx == 0 {
		return 0
	}
	w.Bars = append(w.Bars[:0], w.Bars[idx:]...)
	return idx
}

// Len returns the number of bars currently held.
func (w *Window) Len() int { return len(w.Bars) }

// Latest returns the most recent bar, or false when empty.
func (w *Window) Latest() (models.Candle, bool) {
	if len(w.Bars) == 0 {
		return models.Candle{}, false
	}
	return w.Bars[len(w.Bars)-1], true
}

// Compute derives the full indicator snapshot for the current window
// content, stamped with the window end.
func (w *Window) Compute(windowEnd time.Time) *models.IndicatorSnapshot {
	latest, ok := w.Latest()
	if !ok {
		return nil
	}

	closes := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		closes[i] = b.Close
	}

	atr := ATR14(w.Bars)
	mid := KeltnerMid(closes)

	return &models.IndicatorSnapshot{
		Ticker: w.Ticker,

		Date:   latest.Timestamp.Format(time.RFC3339),
		Open:   latest.Open,
		High:   latest.High,
		Low:    latest.Low,
		Close:  latest.Close,
		Volume: latest.Volume,

		MinLow:  MinLow(w.Bars),
		MaxHigh: MaxHigh(w.Bars),

		MACD:      MACD(closes),
		RSI:       RSI(closes),
		ADL:       ADL(w.Bars),
		SMA20:     SMA(closes, smaShortPeriod),
		SMA50:     SMA(closes, smaLongPeriod),
		Std20:     Std(closes, bollingerPeriod),
		Bollinger: Bollinger(closes),
		VWAP:      VWAP(w.Bars),
		ATR14:     atr,
		OBV:       OBV(w.Bars),
		CMO:       CMO(closes),
		CRSI:      CRSI(closes),
		Klinger:   Klinger(w.Bars),
		Keltner:   Keltner(mid, atr),
		DayChange: DayChangeOf(w.Bars),

		WindowEnd: windowEnd,
	}
}
