// Package indicators implements the window accumulators behind the
// indicator engine: each computes one technical indicator over the candles
// currently in a sliding window.
package indicators

import "math"

// EMAStream computes the exponential moving average prefix-scan with
// alpha = 2/(span+1), seeded from the first value.
func EMAStream(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// SMA returns the trailing n-period simple moving average, or 0 when fewer
// than n values are present.
func SMA(values []float64, n int) float64 {
	if len(values) < n {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// Std returns the trailing n-period population standard deviation, or 0
// when fewer than n values are present.
func Std(values []float64, n int) float64 {
	if len(values) < n {
		return 0
	}
	window := values[len(values)-n:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(n))
}

func deltas(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// wilderRSI runs the Wilder-smoothed RSI over a value series: initial
// averages over the first period deltas, then recursive smoothing.
func wilderRSI(values []float64, period int) float64 {
	if len(values) < 2 {
		return 50.0
	}
	ds := deltas(values)

	head := ds
	if len(head) > period {
		head = head[:period]
	}
	avgGain, avgLoss := 0.0, 0.0
	for _, d := range head {
		if d > 0 {
			avgGain += d
		} else {
			avgLoss += -d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period; i < len(ds); i++ {
		gain, loss := 0.0, 0.0
		if ds[i] > 0 {
			gain = ds[i]
		} else {
			loss = -ds[i]
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
