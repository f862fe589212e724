package indicators

import (
	"github.com/finpulse/finpulse/internal/models"
)

const (
	macdFastSpan   = 12
	macdSlowSpan   = 26
	macdSignalSpan = 9

	rsiPeriod       = 14
	cmoPeriod       = 14
	atrPeriod       = 14
	smaShortPeriod  = 20
	smaLongPeriod   = 50
	bollingerPeriod = 20
	bollingerWidth  = 2.0
	keltnerSpan     = 20
	keltnerWidth    = 2.0
	klingerFast     = 34
	klingerSlow     = 55
	klingerSignal   = 13
	crsiRankWindow  = 100
)

// MACD returns (macd, signal, hist) over the close series. Windows shorter
// than the slow span emit zeros rather than a half-warmed value.
func MACD(closes []float64) models.MACDValue {
	if len(closes) < macdSlowSpan {
		return models.MACDValue{}
	}

	ema12 := EMAStream(closes, macdFastSpan)
	ema26 := EMAStream(closes, macdSlowSpan)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = ema12[i] - ema26[i]
	}
	signal := EMAStream(macdLine, macdSignalSpan)

	m := macdLine[len(macdLine)-1]
	s := signal[len(signal)-1]
	return models.MACDValue{MACD: m, Signal: s, Hist: m - s}
}

// RSI is the Wilder-smoothed 14-period RSI: 100 with no losses, 50 with
// fewer than two closes.
func RSI(closes []float64) float64 {
	return wilderRSI(closes, rsiPeriod)
}

// Bollinger returns (mean-2σ, mean+2σ) over the last 20 closes, or zeros
// when the window is shorter.
func Bollinger(closes []float64) models.Bands {
	if len(closes) < bollingerPeriod {
		return models.Bands{}
	}
	mean := SMA(closes, bollingerPeriod)
	std := Std(closes, bollingerPeriod)
	return models.Bands{
		Lower: mean - bollingerWidth*std,
		Upper: mean + bollingerWidth*std,
	}
}

// CMO is the Chande Momentum Oscillator over the last 14 deltas.
func CMO(closes []float64) float64 {
	ds := deltas(closes)
	if ds == nil {
		return 0
	}
	if len(ds) > cmoPeriod {
		ds = ds[len(ds)-cmoPeriod:]
	}
	up, down := 0.0, 0.0
	for _, d := range ds {
		if d > 0 {
			up += d
		} else if d < 0 {
			down += -d
		}
	}
	if up+down == 0 {
		return 0
	}
	return 100 * (up - down) / (up + down)
}

// CRSI is the composite of RSI(3) on closes, RSI(2) on up/down streaks, and
// the percentile rank of the latest ROC within the last 100 ROCs.
func CRSI(closes []float64) float64 {
	n := len(closes)
	if n < 3 {
		return 50.0
	}

	rsi3 := wilderRSI(closes, 3)

	streaks := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			streaks[i] = streaks[i-1] + 1
			if streaks[i] < 1 {
				streaks[i] = 1
			}
		case closes[i] < closes[i-1]:
			streaks[i] = streaks[i-1] - 1
			if streaks[i] > -1 {
				streaks[i] = -1
			}
		}
	}
	rsiStreak := wilderRSI(streaks, 2)

	roc := 0.0
	if closes[n-2] != 0 {
		roc = (closes[n-1] - closes[n-2]) / closes[n-2] * 100
	}

	start := n - crsiRankWindow
	if start < 1 {
		start = 1
	}
	var rocs []float64
	for i := start; i < n; i++ {
		if closes[i-1] != 0 {
			rocs = append(rocs, (closes[i]-closes[i-1])/closes[i-1]*100)
		}
	}
	rank := 50.0
	if len(rocs) > 0 {
		below := 0
		for _, r := range rocs {
			if r < roc {
				below++
			}
		}
		rank = float64(below) / float64(len(rocs)) * 100
	}

	return (rsi3 + rsiStreak + rank) / 3
}

// KeltnerMid is the EMA midline of the close series.
func KeltnerMid(closes []float64) float64 {
	ema := EMAStream(closes, keltnerSpan)
	if ema == nil {
		return 0
	}
	return ema[len(ema)-1]
}

// Keltner assembles the channel from the midline and ATR.
func Keltner(mid, atr float64) models.KeltnerValue {
	return models.KeltnerValue{
		Mid:   mid,
		Upper: mid + keltnerWidth*atr,
		Lower: mid - keltnerWidth*atr,
	}
}
