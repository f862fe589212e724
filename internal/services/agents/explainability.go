package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	reportType               = "stock_analysis_report"
	defaultMaxToolIterations = 5
)

const explainabilitySystemPrompt = `You are the explainability layer of a stock analysis system. You receive the outputs of specialist agents and produce the final verdict.

You have one tool available:
- get_portfolio: returns the user's current portfolio as JSON.

To call the tool, reply with ONLY this JSON and nothing else:
{"tool": "get_portfolio"}

When you have everything you need, reply with ONLY this JSON structure:
{
  "portfolio_context": {
    "is_holding": <true|false>,
    "current_position": <number of shares held, 0 if none>,
    "suggested_action": "<BUY|SELL|HOLD|REBALANCE>"
  },
  "summary": "<plain-language explanation of the verdict, grounded in the agent outputs>"
}

Always check the portfolio before suggesting an action. Never output anything outside a single JSON object.`

// explainabilityVerdict is the strict-JSON reply contract.
type explainabilityVerdict struct {
	PortfolioContext models.PortfolioContext `json:"portfolio_context"`
	Summary          string                  `json:"summary"`
}

type toolCall struct {
	Tool string `json:"tool"`
}

// ExplainabilityAgent synthesizes specialist outputs into the final report.
// The report skeleton is deterministic; only the verdict and summary come
// from the model.
type ExplainabilityAgent struct {
	llm           interfaces.LLMProvider
	portfolio     interfaces.PortfolioService
	marketData    interfaces.MarketDataClient
	userID        string
	maxIterations int
	logger        arbor.ILogger
	now           func() time.Time
}

func NewExplainabilityAgent(llm interfaces.LLMProvider, portfolio interfaces.PortfolioService, marketData interfaces.MarketDataClient, userID string, maxIterations int, logger arbor.ILogger) *ExplainabilityAgent {
	if maxIterations <= 0 {
		maxIterations = defaultMaxToolIterations
	}
	return &ExplainabilityAgent{
		llm:           llm,
		portfolio:     portfolio,
		marketData:    marketData,
		userID:        userID,
		maxIterations: maxIterations,
		logger:        logger,
		now:           time.Now,
	}
}

// Synthesize fills the report's meta, agent roster, and verdict in place.
// The skeleton is written before the model is consulted, so a model failure
// still leaves a well-formed report.
func (a *ExplainabilityAgent) Synthesize(ctx context.Context, query string, report *models.AnalysisReport) {
	report.Meta.Type = reportType
	report.Meta.Query = query
	report.Meta.Timestamp = a.now().UTC()
	report.AgentsInvoked = invokedAgents(report)

	prompt := a.buildPrompt(ctx, query, report)
	a.runToolLoop(ctx, prompt, report)
}

// invokedAgents lists the specialists that actually produced output.
func invokedAgents(report *models.AnalysisReport) []string {
	var agents []string
	if report.News != nil {
		agents = append(agents, models.AgentNews)
	}
	if report.Twitter != nil {
		agents = append(agents, models.AgentTwitter)
	}
	if report.Technical != nil {
		agents = append(agents, models.AgentTechnical)
	}
	if report.Fundamental != nil {
		agents = append(agents, models.AgentFundamental)
	}
	if report.MonteCarlo != nil {
		agents = append(agents, models.AgentMonteCarlo)
	}
	return agents
}

// buildPrompt serializes the agent outputs. Multi-ticker and no-ticker
// reports get aggregate last prices instead of specialist output.
func (a *ExplainabilityAgent) buildPrompt(ctx context.Context, query string, report *models.AnalysisReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\nTickers: %s\n\n", query, strings.Join(report.Tickers, ", "))

	if report.TriggerSignal != nil {
		fmt.Fprintf(&b, "Trigger signal: %s %s (strength %d) - %s\n\n",
			report.TriggerSignal.Action, report.TriggerSignal.Ticker,
			report.TriggerSignal.SignalStrength, report.TriggerSignal.Reason)
	}
	if report.TriggerNews != nil {
		fmt.Fprintf(&b, "Trigger news: %s (%s, %s impact)\n%s\n\n",
			report.TriggerNews.Title, report.TriggerNews.SentimentLabel,
			report.TriggerNews.LiquidityImpact, report.TriggerNews.Summary)
	}

	appendJSON := func(label string, v any) {
		if v == nil {
			return
		}
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", label, data)
	}
	if report.News != nil {
		appendJSON("News agent", report.News)
	}
	if report.Twitter != nil {
		appendJSON("Twitter agent", report.Twitter)
	}
	if report.Technical != nil {
		appendJSON("Technical agent", report.Technical)
	}
	if report.Fundamental != nil {
		appendJSON("Fundamental agent", report.Fundamental)
	}
	if report.MonteCarlo != nil {
		appendJSON("Monte Carlo agent", report.MonteCarlo)
	}

	if len(report.AgentsInvoked) == 0 {
		b.WriteString(a.aggregateContext(ctx, report.Tickers))
	}
	return b.String()
}

// aggregateContext fetches last prices for the broad-query path where no
// specialist ran.
func (a *ExplainabilityAgent) aggregateContext(ctx context.Context, tickers []string) string {
	if a.marketData == nil || len(tickers) == 0 {
		return "No specialist output; answer from general market knowledge.\n"
	}
	var b strings.Builder
	b.WriteString("Last traded prices:\n")
	for _, ticker := range tickers {
		price, err := a.marketData.LastPrice(ctx, ticker)
		if err != nil {
			a.logger.Warn().Str("ticker", ticker).Err(err).Msg("Last price lookup failed")
			continue
		}
		fmt.Fprintf(&b, "- %s: %.2f\n", ticker, price)
	}
	return b.String()
}

// runToolLoop drives the text tool protocol: each turn either requests the
// portfolio or delivers the final verdict. The transcript grows in the
// prompt since the provider is single-turn.
func (a *ExplainabilityAgent) runToolLoop(ctx context.Context, prompt string, report *models.AnalysisReport) {
	if a.llm == nil {
		report.Summary = "No synthesis model configured."
		return
	}

	transcript := prompt
	for i := 0; i < a.maxIterations; i++ {
		raw, err := a.llm.CompleteWithSystem(ctx, explainabilitySystemPrompt, transcript)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Explainability synthesis failed")
			report.Summary = "Synthesis unavailable."
			return
		}
		reply := stripCodeFences(raw)

		var call toolCall
		if err := json.Unmarshal([]byte(reply), &call); err == nil && call.Tool != "" {
			transcript += "\n\nAssistant requested tool: " + call.Tool +
				"\nTool result: " + a.executeTool(ctx, call.Tool)
			continue
		}

		a.applyVerdict(reply, report)
		return
	}

	a.logger.Warn().Int("iterations", a.maxIterations).Msg("Tool loop budget exhausted")
	report.Summary = "Synthesis did not converge."
}

func (a *ExplainabilityAgent) executeTool(ctx context.Context, name string) string {
	if name != "get_portfolio" {
		return fmt.Sprintf(`{"error": "unknown tool %s"}`, name)
	}
	if a.portfolio == nil || a.userID == "" {
		return `{"error": "no portfolio configured"}`
	}
	p, err := a.portfolio.GetByUser(ctx, a.userID)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	data, err := json.Marshal(p)
	if err != nil {
		return `{"error": "portfolio serialization failed"}`
	}
	return string(data)
}

// applyVerdict decodes the strict reply. A malformed reply still surfaces
// to the reader: the raw content becomes the summary.
func (a *ExplainabilityAgent) applyVerdict(reply string, report *models.AnalysisReport) {
	var verdict explainabilityVerdict
	if err := json.Unmarshal([]byte(reply), &verdict); err != nil || verdict.Summary == "" {
		a.logger.Warn().Msg("Verdict did not parse as strict JSON, keeping raw content")
		report.Summary = reply
		return
	}
	report.PortfolioContext = &verdict.PortfolioContext
	report.Summary = verdict.Summary
}
