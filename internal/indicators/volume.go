package indicators

import (
	"math"

	"github.com/finpulse/finpulse/internal/models"
)

// VWAP is Σ((H+L+C)/3 · V) / ΣV over the window.
func VWAP(bars []models.Candle) float64 {
	pv, vol := 0.0, 0.0
	for _, b := range bars {
		pv += (b.High + b.Low + b.Close) / 3 * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}

// ATR14 averages the true range over the trailing 14 bars, falling back to
// the mean of all TRs when the window is shorter.
func ATR14(bars []models.Candle) float64 {
	if len(bars) < 2 {
		return 0
	}

	trs := make([]float64, 0, len(bars))
	prevClose := 0.0
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			tr = math.Max(tr, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		}
		trs = append(trs, tr)
		prevClose = b.Close
	}

	if len(trs) >= atrPeriod {
		sum := 0.0
		for _, tr := range trs[len(trs)-atrPeriod:] {
			sum += tr
		}
		return sum / float64(atrPeriod)
	}
	sum := 0.0
	for _, tr := range trs {
		sum += tr
	}
	return sum / float64(len(trs))
}

// OBV is the running on-balance volume over the sorted window.
func OBV(bars []models.Candle) float64 {
	obv := 0.0
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			obv += bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			obv -= bars[i].Volume
		}
	}
	return obv
}

// ADL accumulates the money-flow multiplier times volume per bar. Flat bars
// (H==L) use a unit denominator.
func ADL(bars []models.Candle) float64 {
	adl := 0.0
	for _, b := range bars {
		denom := b.High - b.Low
		if denom == 0 {
			denom = 1
		}
		mfm := ((b.Close - b.Low) - (b.High - b.Close)) / denom
		adl += mfm * b.Volume
	}
	return adl
}

// Klinger is the volume-force oscillator: per-bar volume signed by the
// direction of Δ(H+L+C), EMA34−EMA55, with an EMA13 signal line.
func Klinger(bars []models.Candle) models.KlingerValue {
	if len(bars) < 3 {
		return models.KlingerValue{}
	}

	var force []float64
	for i := 1; i < len(bars); i++ {
		dm := (bars[i].High + bars[i].Low + bars[i].Close) -
			(bars[i-1].High + bars[i-1].Low + bars[i-1].Close)
		trend := 1.0
		if dm < 0 {
			trend = -1.0
		}
		force = append(force, trend*bars[i].Volume)
	}
	if len(force) == 0 {
		return models.KlingerValue{}
	}

	e34 := EMAStream(force, klingerFast)
	e55 := EMAStream(force, klingerSlow)
	ko := make([]float64, len(force))
	for i := range force {
		ko[i] = e34[i] - e55[i]
	}
	signal := EMAStream(ko, klingerSignal)

	k := ko[len(ko)-1]
	s := signal[len(signal)-1]
	return models.KlingerValue{KVO: k, Signal: s, Hist: k - s}
}

// DayChangeOf computes (abs, pct) from the first close of the latest-seen
// trading day to the latest close, both rounded to two decimals.
func DayChangeOf(bars []models.Candle) models.DayChange {
	if len(bars) == 0 {
		return models.DayChange{}
	}

	latest := bars[len(bars)-1]
	y, m, d := latest.Timestamp.Date()

	var dayStart float64
	found := false
	for _, b := range bars {
		by, bm, bd := b.Timestamp.Date()
		if by == y && bm == m && bd == d {
			dayStart = b.Close
			found = true
			break
		}
	}
	if !found || dayStart == 0 {
		return models.DayChange{}
	}

	abs := latest.Close - dayStart
	return models.DayChange{
		Abs: round2(abs),
		Pct: round2(abs / dayStart * 100),
	}
}

// MinLow and MaxHigh are the window price extremes.
func MinLow(bars []models.Candle) float64 {
	if len(bars) == 0 {
		return 0
	}
	low := bars[0].Low
	for _, b := range bars[1:] {
		if b.Low < low {
			low = b.Low
		}
	}
	return low
}

func MaxHigh(bars []models.Candle) float64 {
	if len(bars) == 0 {
		return 0
	}
	high := bars[0].High
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
	}
	return high
}
