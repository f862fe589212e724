package agents

import (
	"context"
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"
	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

// Slow MACD period plus signal warmup.
const minTechnicalBars = 35

// TechnicalAgent computes an on-demand indicator readout from fresh candle
// history, independent of the streaming pipeline's window state.
type TechnicalAgent struct {
	marketData interfaces.MarketDataClient
	logger     arbor.ILogger
}

func NewTechnicalAgent(marketData interfaces.MarketDataClient, logger arbor.ILogger) *TechnicalAgent {
	return &TechnicalAgent{marketData: marketData, logger: logger}
}

// Analyze fetches candles for the decision's range and derives RSI, MACD,
// and Bollinger bands over the closes.
func (a *TechnicalAgent) Analyze(ctx context.Context, ticker string, decision models.RoutingDecision) (*models.TechnicalOutput, error) {
	from, to := decisionRange(decision)
	candles, err := a.marketData.Candles(ctx, ticker, decision.Interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", ticker, err)
	}
	if len(candles) < minTechnicalBars {
		return &models.TechnicalOutput{
			Ticker:  ticker,
			Action:  models.ActionHold,
			Summary: fmt.Sprintf("Only %d bars available, need %d.", len(candles), minTechnicalBars),
		}, nil
	}

	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
	}

	rsi := talib.Rsi(closes, 14)
	macd, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	bbUpper, _, bbLower := talib.BBands(closes, 20, 2, 2, talib.SMA)

	last := len(closes) - 1
	out := &models.TechnicalOutput{
		Ticker:     ticker,
		RSI:        rsi[last],
		MACD:       macd[last],
		MACDSignal: macdSignal[last],
		BBUpper:    bbUpper[last],
		BBLower:    bbLower[last],
		LastClose:  closes[last],
	}
	out.Action = technicalAction(out, macdHist[last])
	out.Summary = fmt.Sprintf("%s: close %.2f, RSI %.1f, MACD %.4f vs signal %.4f, bands [%.2f, %.2f]",
		out.Action, out.LastClose, out.RSI, out.MACD, out.MACDSignal, out.BBLower, out.BBUpper)
	return out, nil
}

// technicalAction is a coarse read: oversold with positive momentum buys,
// overbought with negative momentum sells.
func technicalAction(out *models.TechnicalOutput, macdHist float64) string {
	switch {
	case out.RSI < 35 && out.MACD > out.MACDSignal && macdHist > 0:
		return models.ActionBuy
	case out.LastClose <= out.BBLower && out.RSI < 40:
		return models.ActionBuy
	case out.RSI > 65 && out.MACD < out.MACDSignal && macdHist < 0:
		return models.ActionSell
	case out.LastClose >= out.BBUpper && out.RSI > 60:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// decisionRange parses the routing decision's date window, defaulting to
// the trailing year when parsing fails.
func decisionRange(decision models.RoutingDecision) (time.Time, time.Time) {
	to := time.Now()
	if parsed, err := time.Parse(routingDateFormat, decision.EndDate); err == nil {
		to = parsed
	}
	from := to.AddDate(0, 0, -365)
	if parsed, err := time.Parse(routingDateFormat, decision.StartDate); err == nil {
		from = parsed
	}
	return from, to
}
