// Package signals derives trade signals from indicator snapshots: a set of
// rule-based conditions votes BUY or SELL, an optional regression model adds
// weighted votes, and the action fires once the vote count clears its
// threshold.
package signals

import (
	"fmt"
	"strings"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	defaultBuyThreshold  = 5
	defaultSellThreshold = 5

	// With a model present its vote carries the weight of three rule votes
	// and both thresholds rise accordingly.
	defaultModelWeight = 3
	defaultModelEps    = 0.01
	modelThresholdBump = 2.0

	slATRMult    = 1.0
	tpATRMult    = 1.5
	limitATRMult = 0.25
)

// Regressor scores an indicator feature vector: positive leans BUY, negative
// leans SELL. See featureVector for the layout.
type Regressor interface {
	Predict(features [11]float64) float64
}

// Generator turns indicator snapshots into trade signals.
type Generator struct {
	buyThreshold  float64
	sellThreshold float64
	modelWeight   int
	modelEps      float64
	model         Regressor
}

// NewGenerator builds a Generator from config. Both config and model may be
// nil; without a model only the rule votes count.
func NewGenerator(config *common.SignalsConfig, model Regressor) *Generator {
	g := &Generator{
		buyThreshold:  defaultBuyThreshold,
		sellThreshold: defaultSellThreshold,
		modelWeight:   defaultModelWeight,
		modelEps:      defaultModelEps,
		model:         model,
	}
	if config != nil {
		if config.BuyThreshold > 0 {
			g.buyThreshold = float64(config.BuyThreshold)
		}
		if config.SellThreshold > 0 {
			g.sellThreshold = float64(config.SellThreshold)
		}
		if config.MLWeight > 0 {
			g.modelWeight = config.MLWeight
		}
		if config.MLEpsilon > 0 {
			g.modelEps = config.MLEpsilon
		}
	}
	return g
}

// Generate evaluates the rule set against a snapshot. avgVolume is the mean
// bar volume of the window, used for the model's relative-volume feature.
func (g *Generator) Generate(snap *models.IndicatorSnapshot, avgVolume float64) models.TradeSignal {
	sig := baseSignal(snap)

	price := snap.Close
	atr := snap.ATR14

	// Windows with a price below their own recorded low, or no traded
	// volume, are not trustworthy enough to act on.
	if price < snap.MinLow || snap.Volume == 0 {
		return sig
	}

	var reason strings.Builder
	buyVotes := 0
	sellVotes := 0

	if snap.MACD.MACD > snap.MACD.Signal && snap.MACD.Hist > 0 {
		buyVotes++
		reason.WriteString("macd says BUY, ")
	}
	if snap.RSI > 25 && snap.RSI < 45 {
		buyVotes++
		reason.WriteString("rsi says BUY, ")
	}
	if snap.CRSI < 25 {
		buyVotes++
		reason.WriteString("crsi says BUY, ")
	}
	if snap.Bollinger.Lower != 0 && price <= snap.Bollinger.Lower {
		buyVotes++
		reason.WriteString("bb_low says BUY, ")
	}
	if snap.VWAP != 0 && price >= snap.VWAP*1.01 {
		buyVotes++
		reason.WriteString("vwap says BUY, ")
	}
	if snap.Keltner.Lower != 0 && price <= snap.Keltner.Lower {
		buyVotes++
		reason.WriteString("keltner_low says BUY, ")
	}
	if snap.Klinger.KVO > snap.Klinger.Signal && snap.Klinger.Hist > 0 {
		buyVotes++
		reason.WriteString("klinger says BUY, ")
	}
	if snap.SMA20 > snap.SMA50 {
		buyVotes++
		reason.WriteString("sma_trend says BUY, ")
	}
	if snap.CMO < -30 {
		buyVotes++
		reason.WriteString("cmo says BUY, ")
	}

	if snap.MACD.MACD < snap.MACD.Signal && snap.MACD.Hist < 0 {
		sellVotes++
		reason.WriteString("macd says SELL, ")
	}
	if snap.RSI > 55 && snap.RSI < 75 {
		sellVotes++
		reason.WriteString("rsi says SELL, ")
	}
	if snap.CRSI > 75 {
		sellVotes++
		reason.WriteString("crsi says SELL, ")
	}
	// Drop from the recent peak counts silently.
	if price < snap.MaxHigh*0.99 {
		sellVotes++
	}
	if snap.Bollinger.Upper != 0 && price >= snap.Bollinger.Upper {
		sellVotes++
		reason.WriteString("bb_high says SELL, ")
	}
	if snap.VWAP != 0 && price <= 0.99*snap.VWAP {
		sellVotes++
		reason.WriteString("vwap says SELL, ")
	}
	if snap.Keltner.Upper != 0 && price >= snap.Keltner.Upper {
		sellVotes++
		reason.WriteString("kelt_up says SELL, ")
	}
	if snap.Klinger.KVO < snap.Klinger.Signal && snap.Klinger.Hist < 0 {
		sellVotes++
		reason.WriteString("klinger says SELL, ")
	}
	if snap.SMA20 < snap.SMA50 {
		sellVotes++
		reason.WriteString("sma says SELL, ")
	}
	if snap.CMO > 30 {
		sellVotes++
		reason.WriteString("cmo says SELL, ")
	}

	buyThreshold := g.buyThreshold
	sellThreshold := g.sellThreshold
	if g.model != nil {
		pred := g.model.Predict(featureVector(snap, avgVolume))
		if pred > g.modelEps {
			buyVotes += g.modelWeight
			fmt.Fprintf(&reason, "xgb says buy with confidence (%.4f), ", pred)
		} else if pred < -g.modelEps {
			sellVotes += g.modelWeight
			fmt.Fprintf(&reason, "xgb says sell with confidence (%.4f), ", pred)
		}
		buyThreshold += modelThresholdBump
		sellThreshold += modelThresholdBump
	}

	if float64(buyVotes) >= buyThreshold {
		sig.Action = models.ActionBuy
		sig.StopLoss = price - slATRMult*atr
		sig.TakeProfit = price + tpATRMult*atr
		sig.SignalStrength = buyVotes
		sig.LimitOrder = price - limitATRMult*atr
	} else if float64(sellVotes) >= sellThreshold {
		sig.Action = models.ActionSell
		sig.StopLoss = 0
		sig.TakeProfit = 0
		sig.SignalStrength = sellVotes
		sig.LimitOrder = price - limitATRMult*atr
	}
	sig.Reason = reason.String()
	return sig
}

// featureVector is the model input layout: rsi, cmo, crsi, macd relative to
// price (%), atr (%), distance from sma20/sma50/vwap (%), position within the
// Bollinger and Keltner bands, and volume relative to the window average.
func featureVector(snap *models.IndicatorSnapshot, avgVolume float64) [11]float64 {
	price := snap.Close

	var macdRel, atrPct float64
	if price != 0 {
		macdRel = snap.MACD.MACD / price * 100
		atrPct = snap.ATR14 / price * 100
	}

	var sma20Dist, sma50Dist, vwapDist float64
	if snap.SMA20 != 0 {
		sma20Dist = (price - snap.SMA20) / snap.SMA20 * 100
	}
	if snap.SMA50 != 0 {
		sma50Dist = (price - snap.SMA50) / snap.SMA50 * 100
	}
	if snap.VWAP != 0 {
		vwapDist = (price - snap.VWAP) / snap.VWAP * 100
	}

	bbPos := 0.5
	if r := snap.Bollinger.Upper - snap.Bollinger.Lower; r != 0 {
		bbPos = (price - snap.Bollinger.Lower) / r
	}
	keltPos := 0.5
	if r := snap.Keltner.Upper - snap.Keltner.Lower; r != 0 {
		keltPos = (price - snap.Keltner.Lower) / r
	}

	volRel := 1.0
	if avgVolume != 0 {
		volRel = snap.Volume / avgVolume
	}

	return [11]float64{
		snap.RSI, snap.CMO, snap.CRSI, macdRel, atrPct,
		sma20Dist, sma50Dist, vwapDist,
		bbPos, keltPos, volRel,
	}
}

// baseSignal copies the snapshot's prices and indicator values into a HOLD
// signal; Generate overwrites the decision fields when a vote clears.
func baseSignal(snap *models.IndicatorSnapshot) models.TradeSignal {
	return models.TradeSignal{
		Ticker: snap.Ticker,
		Date:   snap.Date,

		ClosePrice: snap.Close,
		OpenPrice:  snap.Open,
		Volume:     snap.Volume,
		HighPrice:  snap.High,
		LowPrice:   snap.Low,

		Action:       models.ActionHold,
		CurrentPrice: snap.Close,

		RSI:        snap.RSI,
		MACD:       snap.MACD.MACD,
		MACDSignal: snap.MACD.Signal,
		MACDHist:   snap.MACD.Hist,
		VWAP:       snap.VWAP,
		BolBands:   [2]float64{snap.Bollinger.Lower, snap.Bollinger.Upper},
		SMA:        [2]float64{snap.SMA20, snap.SMA50},
		CRSI:       snap.CRSI,
		Klinger:    [3]float64{snap.Klinger.KVO, snap.Klinger.Signal, snap.Klinger.Hist},
		Keltner:    [3]float64{snap.Keltner.Mid, snap.Keltner.Upper, snap.Keltner.Lower},
		CMO:        snap.CMO,

		AbsChange: snap.DayChange.Abs,
		PctChange: snap.DayChange.Pct,
	}
}
