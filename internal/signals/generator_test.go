package signals

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/models"
)

type fixedRegressor struct {
	score    float64
	features [11]float64
	called   bool
}

func (r *fixedRegressor) Predict(features [11]float64) float64 {
	r.features = features
	r.called = true
	return r.score
}

func neutralSnapshot() *models.IndicatorSnapshot {
	return &models.IndicatorSnapshot{
		Ticker:  "RELIANCE",
		Date:    "2026-08-24T10:00:00Z",
		Open:    99,
		High:    101,
		Low:     98,
		Close:   100,
		Volume:  1000,
		MinLow:  90,
		MaxHigh: 100,
		RSI:     50,
		CRSI:    50,
		ATR14:   2,
	}
}

func TestGenerate_GuardHoldsOnBadWindow(t *testing.T) {
	g := NewGenerator(nil, nil)

	snap := neutralSnapshot()
	snap.MinLow = 150 // close below the window low
	snap.RSI = 40

	sig := g.Generate(snap, 1000)
	assert.Equal(t, models.ActionHold, sig.Action)
	assert.Zero(t, sig.StopLoss)
	assert.Zero(t, sig.SignalStrength)
	assert.Empty(t, sig.Reason)
	assert.Equal(t, 40.0, sig.RSI, "indicator values still carried")

	snap = neutralSnapshot()
	snap.Volume = 0
	sig = g.Generate(snap, 1000)
	assert.Equal(t, models.ActionHold, sig.Action)
}

func TestGenerate_HoldWhenFewVotes(t *testing.T) {
	sig := NewGenerator(nil, nil).Generate(neutralSnapshot(), 1000)
	assert.Equal(t, models.ActionHold, sig.Action)
	assert.Zero(t, sig.SignalStrength)
}

func TestGenerate_Buy(t *testing.T) {
	snap := neutralSnapshot()
	snap.MACD = models.MACDValue{MACD: 2, Signal: 1, Hist: 1}
	snap.RSI = 40
	snap.CRSI = 20
	snap.Bollinger = models.Bands{Lower: 101, Upper: 120}
	snap.VWAP = 95 // close >= vwap*1.01
	snap.Keltner = models.KeltnerValue{Mid: 105, Upper: 110, Lower: 100}
	snap.Klinger = models.KlingerValue{KVO: 1, Signal: 0.5, Hist: 0.5}
	snap.SMA20 = 50
	snap.SMA50 = 40
	snap.CMO = -40

	sig := NewGenerator(nil, nil).Generate(snap, 1000)
	require.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 9, sig.SignalStrength)
	assert.Equal(t, 98.0, sig.StopLoss)
	assert.Equal(t, 103.0, sig.TakeProfit)
	assert.Equal(t, 99.5, sig.LimitOrder)

	for _, want := range []string{
		"macd says BUY, ", "rsi says BUY, ", "crsi says BUY, ", "bb_low says BUY, ",
		"vwap says BUY, ", "keltner_low says BUY, ", "klinger says BUY, ",
		"sma_trend says BUY, ", "cmo says BUY, ",
	} {
		assert.Contains(t, sig.Reason, want)
	}
}

func TestGenerate_Sell(t *testing.T) {
	snap := neutralSnapshot()
	snap.MaxHigh = 105 // close < maxHigh*0.99, counted without a reason
	snap.MACD = models.MACDValue{MACD: -2, Signal: -1, Hist: -1}
	snap.RSI = 60
	snap.CRSI = 80
	snap.Bollinger = models.Bands{Lower: 80, Upper: 99}
	snap.VWAP = 100
	snap.Keltner = models.KeltnerValue{Mid: 90, Upper: 99, Lower: 80}
	snap.Klinger = models.KlingerValue{KVO: -1, Signal: -0.5, Hist: -0.5}
	snap.SMA20 = 40
	snap.SMA50 = 50
	snap.CMO = 40

	sig := NewGenerator(nil, nil).Generate(snap, 1000)
	require.Equal(t, models.ActionSell, sig.Action)
	assert.Equal(t, 9, sig.SignalStrength)
	assert.Zero(t, sig.StopLoss)
	assert.Zero(t, sig.TakeProfit)
	assert.Equal(t, 99.5, sig.LimitOrder)

	// The peak-drop vote is silent: nine votes, eight reasons.
	assert.Equal(t, 8, strings.Count(sig.Reason, "SELL"))
}

func TestGenerate_BuyWinsOverSell(t *testing.T) {
	// Enough votes on both sides: BUY takes precedence.
	snap := neutralSnapshot()
	snap.MACD = models.MACDValue{MACD: 2, Signal: 1, Hist: 1}
	snap.RSI = 40
	snap.CRSI = 20
	snap.Bollinger = models.Bands{Lower: 101, Upper: 120}
	snap.VWAP = 95
	snap.Keltner = models.KeltnerValue{Mid: 105, Upper: 110, Lower: 100}
	snap.Klinger = models.KlingerValue{KVO: 1, Signal: 0.5, Hist: 0.5}
	snap.SMA20 = 50
	snap.SMA50 = 40
	snap.CMO = -40
	snap.MaxHigh = 200

	sig := NewGenerator(nil, nil).Generate(snap, 1000)
	assert.Equal(t, models.ActionBuy, sig.Action)
}

func TestGenerate_ModelRaisesThresholds(t *testing.T) {
	// Four rule votes: below the bare threshold of five, and with a model
	// the three extra votes meet the raised threshold of seven.
	snap := neutralSnapshot()
	snap.RSI = 40
	snap.CRSI = 20
	snap.CMO = -40
	snap.SMA20 = 55
	snap.SMA50 = 50

	sig := NewGenerator(nil, nil).Generate(snap, 1000)
	assert.Equal(t, models.ActionHold, sig.Action)

	model := &fixedRegressor{score: 1}
	sig = NewGenerator(nil, model).Generate(snap, 1000)
	require.True(t, model.called)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 7, sig.SignalStrength)
	assert.Contains(t, sig.Reason, "xgb says buy with confidence (1.0000), ")
}

func TestGenerate_ModelSellVote(t *testing.T) {
	snap := neutralSnapshot()
	snap.MaxHigh = 105
	snap.RSI = 60
	snap.CRSI = 80
	snap.CMO = 40
	snap.SMA20 = 40
	snap.SMA50 = 50 // five rule votes

	model := &fixedRegressor{score: -0.5}
	sig := NewGenerator(nil, model).Generate(snap, 1000)
	assert.Equal(t, models.ActionSell, sig.Action)
	assert.Equal(t, 8, sig.SignalStrength)
	assert.Contains(t, sig.Reason, "xgb says sell with confidence (-0.5000), ")
}

func TestFeatureVector(t *testing.T) {
	snap := neutralSnapshot()
	snap.RSI = 40
	snap.CMO = -40
	snap.CRSI = 20
	snap.SMA20 = 55
	snap.SMA50 = 50
	snap.ATR14 = 2

	model := &fixedRegressor{score: 0}
	NewGenerator(nil, model).Generate(snap, 500)
	require.True(t, model.called)

	f := model.features
	assert.Equal(t, 40.0, f[0])
	assert.Equal(t, -40.0, f[1])
	assert.Equal(t, 20.0, f[2])
	assert.Equal(t, 0.0, f[3], "zero macd")
	assert.InDelta(t, 2.0, f[4], 1e-12)
	assert.InDelta(t, (100.0-55)/55*100, f[5], 1e-12)
	assert.InDelta(t, 100.0, f[6], 1e-12)
	assert.Equal(t, 0.0, f[7], "zero vwap skips the distance")
	assert.Equal(t, 0.5, f[8], "degenerate band defaults to midpoint")
	assert.Equal(t, 0.5, f[9])
	assert.Equal(t, 2.0, f[10], "volume relative to window average")
}

func TestBaseSignal_CarriesIndicators(t *testing.T) {
	snap := neutralSnapshot()
	snap.Bollinger = models.Bands{Lower: 95, Upper: 105}
	snap.Klinger = models.KlingerValue{KVO: 1, Signal: 2, Hist: -1}
	snap.Keltner = models.KeltnerValue{Mid: 100, Upper: 104, Lower: 96}
	snap.DayChange = models.DayChange{Abs: 1.5, Pct: 1.52}

	sig := baseSignal(snap)
	assert.Equal(t, "RELIANCE", sig.Ticker)
	assert.Equal(t, [2]float64{95, 105}, sig.BolBands)
	assert.Equal(t, [3]float64{1, 2, -1}, sig.Klinger)
	assert.Equal(t, [3]float64{100, 104, 96}, sig.Keltner)
	assert.Equal(t, 1.5, sig.AbsChange)
	assert.Equal(t, 100.0, sig.CurrentPrice)
}
