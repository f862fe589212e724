package models

import "time"

// Signal actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// MACDValue is the (macd, signal, hist) triplet.
type MACDValue struct {
	MACD   float64 `json:"macd"`
	Signal float64 `json:"signal"`
	Hist   float64 `json:"hist"`
}

// KlingerValue is the (kvo, signal, hist) triplet.
type KlingerValue struct {
	KVO    float64 `json:"kvo"`
	Signal float64 `json:"signal"`
	Hist   float64 `json:"hist"`
}

// Bands is a (lower, upper) pair used by Bollinger output.
type Bands struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// KeltnerValue is the (mid, upper, lower) channel.
type KeltnerValue struct {
	Mid   float64 `json:"mid"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// DayChange is the (absolute, percent) move from the first close of the
// latest trading day to the latest close.
type DayChange struct {
	Abs float64 `json:"abs"`
	Pct float64 `json:"pct"`
}

// IndicatorSnapshot is the per-ticker row produced at each window emission.
type IndicatorSnapshot struct {
	ID     uint64 `json:"-" badgerhold:"key"`
	Ticker string `json:"ticker" badgerhold:"index"`

	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	MinLow  float64 `json:"min_low"`
	MaxHigh float64 `json:"max_high"`

	MACD      MACDValue    `json:"macd"`
	RSI       float64      `json:"rsi"`
	ADL       float64      `json:"adl"`
	SMA20     float64      `json:"sma20"`
	SMA50     float64      `json:"sma50"`
	Std20     float64      `json:"std20"`
	Bollinger Bands        `json:"bollinger"`
	VWAP      float64      `json:"vwap"`
	ATR14     float64      `json:"atr14"`
	OBV       float64      `json:"obv"`
	CMO       float64      `json:"cmo"`
	CRSI      float64      `json:"crsi"`
	Klinger   KlingerValue `json:"klinger"`
	Keltner   KeltnerValue `json:"keltner"`
	DayChange DayChange    `json:"day_change"`

	WindowEnd time.Time `json:"window_end"`
}

// TradeSignal is the decision derived from an IndicatorSnapshot. The JSON
// key set is the wire contract on the trade_signals topic and must stay
// stable.
type TradeSignal struct {
	ID     uint64 `json:"-" badgerhold:"key"`
	Ticker string `json:"ticker" badgerhold:"index"`
	Date   string `json:"date"`

	ClosePrice float64 `json:"close_price"`
	OpenPrice  float64 `json:"open_price"`
	Volume     float64 `json:"volume"`
	HighPrice  float64 `json:"high_price"`
	LowPrice   float64 `json:"low_price"`

	Action         string  `json:"action"`
	StopLoss       float64 `json:"stop_loss"`
	TakeProfit     float64 `json:"take_profit"`
	SignalStrength int     `json:"signal_strength"`
	LimitOrder     float64 `json:"limit_order"`
	CurrentPrice   float64 `json:"current_price"`

	RSI        float64    `json:"rsi"`
	MACD       float64    `json:"macd"`
	MACDSignal float64    `json:"macd_signal"`
	MACDHist   float64    `json:"macd_hist"`
	VWAP       float64    `json:"vwap"`
	BolBands   [2]float64 `json:"bol_bands"`
	SMA        [2]float64 `json:"sma"`
	CRSI       float64    `json:"crsi"`
	Klinger    [3]float64 `json:"klinger"`
	Keltner    [3]float64 `json:"keltner"`
	CMO        float64    `json:"cmo"`

	Reason    string  `json:"reason"`
	AbsChange float64 `json:"abs_change"`
	PctChange float64 `json:"pct_change"`
}
