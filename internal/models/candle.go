package models

import "time"

// Candle is one OHLCV bar, the source-of-truth input for all indicator
// state. Timestamps are timezone-aware.
type Candle struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// ValidDate rejects bars with obviously corrupt timestamps before they can
// poison window state.
func (c Candle) ValidDate() bool {
	y := c.Timestamp.Year()
	return y >= 2000 && y <= 2100
}

// UniverseRow is the per-ticker latest-tick row upserted into the universe
// collection on every pipeline emission.
type UniverseRow struct {
	Ticker    string  `json:"ticker" badgerhold:"key"`
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	AbsChange float64 `json:"abs_change"`
	PctChange float64 `json:"pct_change"`
}
