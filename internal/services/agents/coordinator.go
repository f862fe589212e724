package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/models"
)

// ConflictPolicy decides whether a signal-triggered report contradicts the
// sentiment-side agents badly enough to suppress publication.
type ConflictPolicy interface {
	Check(signal *models.TradeSignal, report *models.AnalysisReport) (conflict bool, reason string)
}

// SentimentConflictPolicy blocks BUY signals against bearish coverage and
// SELL signals against bullish coverage.
type SentimentConflictPolicy struct {
	// Twitter score bounds outside which sentiment contradicts the signal.
	BearishCeiling float64
	BullishFloor   float64
}

func NewSentimentConflictPolicy() *SentimentConflictPolicy {
	return &SentimentConflictPolicy{BearishCeiling: 0.3, BullishFloor: 0.7}
}

func (p *SentimentConflictPolicy) Check(signal *models.TradeSignal, report *models.AnalysisReport) (bool, string) {
	switch signal.Action {
	case models.ActionBuy:
		if report.News != nil && report.News.OverallSentiment == "bearish" {
			return true, fmt.Sprintf("BUY signal for %s against bearish news coverage", signal.Ticker)
		}
		if report.Twitter != nil && report.Twitter.PostCount > 0 && report.Twitter.SentimentScore < p.BearishCeiling {
			return true, fmt.Sprintf("BUY signal for %s against social sentiment %.2f", signal.Ticker, report.Twitter.SentimentScore)
		}
	case models.ActionSell:
		if report.News != nil && report.News.OverallSentiment == "bullish" {
			return true, fmt.Sprintf("SELL signal for %s against bullish news coverage", signal.Ticker)
		}
		if report.Twitter != nil && report.Twitter.PostCount > 0 && report.Twitter.SentimentScore > p.BullishFloor {
			return true, fmt.Sprintf("SELL signal for %s against social sentiment %.2f", signal.Ticker, report.Twitter.SentimentScore)
		}
	}
	return false, ""
}

// Coordinator fans an analysis request out to the specialist agents the
// routing decision enables, then synthesizes the report. Specialist failures
// degrade to missing sections, never to a failed report.
type Coordinator struct {
	orchestrator *Orchestrator
	news         *NewsAgent
	twitter      *TwitterAgent
	technical    *TechnicalAgent
	fundamental  *FundamentalAgent
	montecarlo   *MonteCarloAgent
	explain      *ExplainabilityAgent
	conflicts    ConflictPolicy
	logger       arbor.ILogger
}

func NewCoordinator(orchestrator *Orchestrator, news *NewsAgent, twitter *TwitterAgent, technical *TechnicalAgent, fundamental *FundamentalAgent, montecarlo *MonteCarloAgent, explain *ExplainabilityAgent, conflicts ConflictPolicy, logger arbor.ILogger) *Coordinator {
	if conflicts == nil {
		conflicts = NewSentimentConflictPolicy()
	}
	return &Coordinator{
		orchestrator: orchestrator,
		news:         news,
		twitter:      twitter,
		technical:    technical,
		fundamental:  fundamental,
		montecarlo:   montecarlo,
		explain:      explain,
		conflicts:    conflicts,
		logger:       logger,
	}
}

// Analyze routes the request, runs the enabled specialists concurrently,
// and synthesizes the final report. Only signal-triggered reports go
// through the conflict check; news-triggered and user-query reports always
// publish.
func (c *Coordinator) Analyze(ctx context.Context, req AnalysisRequest) *models.AnalysisReport {
	decision := c.orchestrator.Route(ctx, req)

	report := &models.AnalysisReport{
		Tickers:       decision.TickerList(),
		TriggerSignal: req.Signal,
		TriggerNews:   req.News,
		ShouldPublish: true,
	}

	if tickers := decision.TickerList(); len(tickers) == 1 {
		c.runSpecialists(ctx, tickers[0], decision, report)
	}

	c.explain.Synthesize(ctx, req.Query, report)

	if req.Trigger == models.TriggerTechnicalSignal && req.Signal != nil {
		if conflict, reason := c.conflicts.Check(req.Signal, report); conflict {
			report.ShouldPublish = false
			report.ConflictReason = reason
		}
	}
	return report
}

func (c *Coordinator) runSpecialists(ctx context.Context, ticker string, decision models.RoutingDecision, report *models.AnalysisReport) {
	var wg sync.WaitGroup
	run := func(name string, enabled bool, fn func() error) {
		if !enabled {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				c.logger.Warn().Str("agent", name).Str("ticker", ticker).Err(err).Msg("Specialist agent failed")
			}
		}()
	}

	run(models.AgentNews, decision.RunNews && c.news != nil, func() error {
		out, err := c.news.Analyze(ctx, ticker)
		if err == nil {
			report.News = out
		}
		return err
	})
	run(models.AgentTwitter, decision.RunTwitter && c.twitter != nil, func() error {
		out, err := c.twitter.Analyze(ctx, ticker)
		if err == nil {
			report.Twitter = out
		}
		return err
	})
	run(models.AgentTechnical, decision.RunTechnical && c.technical != nil, func() error {
		out, err := c.technical.Analyze(ctx, ticker, decision)
		if err == nil {
			report.Technical = out
		}
		return err
	})
	run(models.AgentFundamental, decision.RunFundamental && c.fundamental != nil, func() error {
		out, err := c.fundamental.Analyze(ctx, ticker)
		if err == nil {
			report.Fundamental = out
		}
		return err
	})
	run(models.AgentMonteCarlo, decision.RunMonteCarlo && c.montecarlo != nil, func() error {
		out, err := c.montecarlo.Analyze(ctx, ticker, decision)
		if err == nil {
			report.MonteCarlo = out
		}
		return err
	})

	wg.Wait()
}
