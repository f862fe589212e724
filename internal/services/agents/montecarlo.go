package agents

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"gonum.org/v1/gonum/stat"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	defaultSimulations   = 10000
	defaultHorizonBars   = 30
	minMonteCarloHistory = 30
)

// MonteCarloAgent projects the terminal-price distribution by bootstrap
// resampling historical daily log returns.
type MonteCarloAgent struct {
	marketData  interfaces.MarketDataClient
	simulations int
	logger      arbor.ILogger

	// seeded per call unless a test pins it
	newRand func() *rand.Rand
}

func NewMonteCarloAgent(marketData interfaces.MarketDataClient, simulations int, logger arbor.ILogger) *MonteCarloAgent {
	if simulations <= 0 {
		simulations = defaultSimulations
	}
	return &MonteCarloAgent{
		marketData:  marketData,
		simulations: simulations,
		logger:      logger,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// Analyze simulates forward from the latest close over the decision's
// horizon. Each path sums bootstrap-sampled daily log returns.
func (a *MonteCarloAgent) Analyze(ctx context.Context, ticker string, decision models.RoutingDecision) (*models.MonteCarloOutput, error) {
	from, to := decisionRange(decision)
	candles, err := a.marketData.Candles(ctx, ticker, models.IntervalDay, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", ticker, err)
	}
	if len(candles) < minMonteCarloHistory {
		return nil, fmt.Errorf("%s has %d daily bars, need %d for simulation", ticker, len(candles), minMonteCarloHistory)
	}

	returns := logReturns(candles)
	if len(returns) == 0 {
		return nil, fmt.Errorf("%s history has no usable closes", ticker)
	}
	lastClose := candles[len(candles)-1].Close

	horizon := decision.TimeframeHours / 24
	if horizon <= 0 {
		horizon = defaultHorizonBars
	}

	rng := a.newRand()
	terminal := make([]float64, a.simulations)
	totalReturns := make([]float64, a.simulations)
	gains := 0
	for i := range terminal {
		sum := 0.0
		for d := 0; d < horizon; d++ {
			sum += returns[rng.Intn(len(returns))]
		}
		terminal[i] = lastClose * math.Exp(sum)
		totalReturns[i] = (terminal[i]/lastClose - 1) * 100
		if terminal[i] > lastClose {
			gains++
		}
	}

	sort.Float64s(totalReturns)
	out := &models.MonteCarloOutput{
		Ticker:        ticker,
		Horizon:       horizon,
		Simulations:   a.simulations,
		ExpectedPrice: stat.Mean(terminal, nil),
		VaR95:         stat.Quantile(0.05, stat.Empirical, totalReturns, nil),
		Upside95:      stat.Quantile(0.95, stat.Empirical, totalReturns, nil),
		ProbGain:      float64(gains) / float64(a.simulations),
	}
	out.Summary = fmt.Sprintf(
		"%d paths over %d days: expected %.2f, 95%% VaR %.2f%%, 95%% upside %.2f%%, P(gain) %.2f",
		out.Simulations, out.Horizon, out.ExpectedPrice, out.VaR95, out.Upside95, out.ProbGain)
	return out, nil
}

// logReturns drops non-positive closes so the log is always defined.
func logReturns(candles []models.Candle) []float64 {
	var out []float64
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}
