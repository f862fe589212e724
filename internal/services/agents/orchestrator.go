// Package agents implements the multi-agent analysis layer: an orchestrator
// that routes queries and broker triggers to specialist agents, the agents
// themselves, and the explainability synthesis that turns their outputs into
// a published report.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const defaultAgentTimeout = 30 * time.Second

const routingDateFormat = "2006-01-02"

// fallbackTicker anchors analysis when nothing in the query resolves.
const fallbackTicker = "RELIANCE"

const routingSystemPrompt = `You are a stocks analysis orchestrator. Parse the user's query into a routing plan.

Return ONLY a JSON object with these exact fields:
{
  "tickers": "comma-separated company names or symbols mentioned",
  "timeframe": <analysis horizon in hours, integer>,
  "interval": "one of: minute, 3minute, 5minute, 10minute, 15minute, 30minute, 60minute, day",
  "start_date": "YYYY-MM-DD or empty string",
  "end_date": "YYYY-MM-DD or empty string",
  "run_news": <true if news coverage matters to the question>,
  "run_twitter": <true if social sentiment matters>,
  "run_technical": <true if price action or indicators matter>,
  "run_fundamental": <true if valuation or company quality matters>,
  "run_montecarlo": <true if risk, projection, or probability matters>
}

Default to running news and technical when the intent is unclear. Do not include any text outside the JSON object.`

// tickerPattern is the last-resort extraction when the routing model fails:
// uppercase runs that look like exchange symbols.
var tickerPattern = regexp.MustCompile(`\b([A-Z]{2,6})\b`)

// AnalysisRequest is one unit of work for the orchestrator: a user query or
// a broker-triggered analysis.
type AnalysisRequest struct {
	Query   string
	Trigger string // models.TriggerUserQuery, TriggerTechnicalSignal, TriggerNewsSignal
	Signal  *models.TradeSignal
	News    *models.NewsMessage
}

// Orchestrator turns analysis requests into routing decisions. Broker
// triggers route deterministically; user queries go through the decision
// model with a regex fallback.
type Orchestrator struct {
	decider  interfaces.LLMProvider
	resolver interfaces.TickerResolver
	logger   arbor.ILogger
	now      func() time.Time
}

// NewOrchestrator wires the decision provider and ticker resolver.
func NewOrchestrator(decider interfaces.LLMProvider, resolver interfaces.TickerResolver, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		decider:  decider,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Route produces the routing decision for a request.
//
// Trigger short-circuits skip the model entirely: a technical signal needs
// the sentiment-side agents for conflict checking, a news trigger needs the
// price-side agents. User queries are parsed by the decision model.
func (o *Orchestrator) Route(ctx context.Context, req AnalysisRequest) models.RoutingDecision {
	switch req.Trigger {
	case models.TriggerTechnicalSignal:
		decision := models.RoutingDecision{
			Tickers:    req.Signal.Ticker,
			Interval:   models.IntervalDay,
			RunNews:    true,
			RunTwitter: true,
			// Monte Carlo projects forward from the signal's entry.
			RunMonteCarlo: true,
		}
		o.applyDateDefaults(&decision)
		return decision

	case models.TriggerNewsSignal:
		decision := models.RoutingDecision{
			Tickers:       req.News.Company,
			Interval:      models.IntervalDay,
			RunTechnical:  true,
			RunMonteCarlo: true,
		}
		o.applyDateDefaults(&decision)
		return decision
	}

	decision, err := o.parseQuery(ctx, req.Query)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Routing parse failed, using fallback extraction")
		decision = o.fallbackDecision(req.Query)
	}

	if o.resolver != nil {
		resolved := o.resolver.Resolve(ctx, decision.TickerList())
		decision.Tickers = strings.Join(resolved, ",")
	}

	// Specialist agents are scoped to a single instrument. Multi-ticker and
	// no-ticker queries fall through to the aggregate report path.
	if len(decision.TickerList()) != 1 {
		decision.RunNews = false
		decision.RunTwitter = false
		decision.RunTechnical = false
		decision.RunFundamental = false
		decision.RunMonteCarlo = false
	}

	o.applyDateDefaults(&decision)
	return decision
}

// parseQuery asks the decision model for a routing plan and decodes it.
func (o *Orchestrator) parseQuery(ctx context.Context, query string) (models.RoutingDecision, error) {
	if o.decider == nil {
		return models.RoutingDecision{}, fmt.Errorf("no decision provider configured")
	}
	raw, err := o.decider.CompleteWithSystem(ctx, routingSystemPrompt, query)
	if err != nil {
		return models.RoutingDecision{}, fmt.Errorf("decision model: %w", err)
	}

	var decision models.RoutingDecision
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &decision); err != nil {
		return models.RoutingDecision{}, fmt.Errorf("decode routing plan: %w", err)
	}
	if decision.Tickers == "" {
		return models.RoutingDecision{}, fmt.Errorf("routing plan has no tickers")
	}
	return decision, nil
}

// fallbackDecision extracts symbol-shaped tokens from the raw query. The
// news agent alone runs in this degraded mode.
func (o *Orchestrator) fallbackDecision(query string) models.RoutingDecision {
	var tickers []string
	for _, match := range tickerPattern.FindAllStringSubmatch(query, -1) {
		tickers = append(tickers, match[1])
	}
	if len(tickers) == 0 {
		tickers = []string{fallbackTicker}
	}
	return models.RoutingDecision{
		Tickers:  strings.Join(tickers, ","),
		Interval: models.IntervalDay,
		RunNews:  true,
	}
}

// applyDateDefaults fills missing dates from the interval: daily bars get a
// year of history, hourly and half-hourly get two months, intraday gets five
// days. A degenerate range is widened to one day.
func (o *Orchestrator) applyDateDefaults(decision *models.RoutingDecision) {
	if decision.Interval == "" {
		decision.Interval = models.IntervalDay
	}

	end := o.now()
	if decision.EndDate != "" {
		if parsed, err := time.Parse(routingDateFormat, decision.EndDate); err == nil {
			end = parsed
		}
	}

	var start time.Time
	if decision.StartDate != "" {
		if parsed, err := time.Parse(routingDateFormat, decision.StartDate); err == nil {
			start = parsed
		}
	}
	if start.IsZero() {
		switch decision.Interval {
		case models.IntervalDay:
			start = end.AddDate(0, 0, -365)
		case models.Interval60Minute, models.Interval30Minute:
			start = end.AddDate(0, 0, -60)
		default:
			start = end.AddDate(0, 0, -5)
		}
	}
	if !start.Before(end) {
		start = end.AddDate(0, 0, -1)
	}

	decision.StartDate = start.Format(routingDateFormat)
	decision.EndDate = end.Format(routingDateFormat)
}

// stripCodeFences removes a ```json ... ``` wrapper if the model added one.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
