package models

import "time"

// Candle intervals accepted by the market-data API.
const (
	IntervalMinute   = "minute"
	Interval3Minute  = "3minute"
	Interval5Minute  = "5minute"
	Interval10Minute = "10minute"
	Interval15Minute = "15minute"
	Interval30Minute = "30minute"
	Interval60Minute = "60minute"
	IntervalDay      = "day"
)

// Analysis trigger types.
const (
	TriggerUserQuery       = "user_query"
	TriggerTechnicalSignal = "technical_signal"
	TriggerNewsSignal      = "news_signal"
)

// RoutingDecision is the orchestrator's parsed plan: which tickers to
// analyze, over what window, and which specialist agents to run.
type RoutingDecision struct {
	Tickers        string `json:"tickers"` // comma-separated exchange symbols
	TimeframeHours int    `json:"timeframe"`
	Interval       string `json:"interval"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	RunNews        bool   `json:"run_news"`
	RunTwitter     bool   `json:"run_twitter"`
	RunTechnical   bool   `json:"run_technical"`
	RunFundamental bool   `json:"run_fundamental"`
	RunMonteCarlo  bool   `json:"run_montecarlo"`
}

// TickerList splits the comma-separated ticker field.
func (d RoutingDecision) TickerList() []string {
	if d.Tickers == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(d.Tickers); i++ {
		if i == len(d.Tickers) || d.Tickers[i] == ',' {
			if i > start {
				out = append(out, d.Tickers[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// AgentNames identifies specialist agents in reports and logs.
const (
	AgentNews           = "news"
	AgentTwitter        = "twitter"
	AgentTechnical      = "technical"
	AgentFundamental    = "fundamental"
	AgentMonteCarlo     = "montecarlo"
	AgentExplainability = "explainability"
)

// NewsOutput is the news agent's aggregate view over recent coverage.
type NewsOutput struct {
	Ticker           string        `json:"ticker"`
	OverallSentiment string        `json:"overall_sentiment"`
	SentimentScore   float64       `json:"sentiment_score"`
	ArticleCount     int           `json:"article_count"`
	TopHeadlines     []string      `json:"top_headlines"`
	Summary          string        `json:"summary"`
}

// TwitterOutput is the social-sentiment agent's result.
type TwitterOutput struct {
	Ticker         string  `json:"ticker"`
	SentimentScore float64 `json:"sentiment_score"`
	PostCount      int     `json:"post_count"`
	Summary        string  `json:"summary"`
}

// TechnicalOutput is the technical agent's on-demand indicator readout.
type TechnicalOutput struct {
	Ticker     string  `json:"ticker"`
	Action     string  `json:"action"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	BBUpper    float64 `json:"bb_upper"`
	BBLower    float64 `json:"bb_lower"`
	LastClose  float64 `json:"last_close"`
	Summary    string  `json:"summary"`
}

// FundamentalOutput carries basic valuation context.
type FundamentalOutput struct {
	Ticker  string  `json:"ticker"`
	PE      float64 `json:"pe,omitempty"`
	Beta    float64 `json:"beta,omitempty"`
	Sector  string  `json:"sector,omitempty"`
	Summary string  `json:"summary"`
}

// MonteCarloOutput reports the simulated terminal-price distribution.
type MonteCarloOutput struct {
	Ticker        string  `json:"ticker"`
	Horizon       int     `json:"horizon_bars"`
	Simulations   int     `json:"simulations"`
	ExpectedPrice float64 `json:"expected_price"`
	VaR95         float64 `json:"var_95"`
	Upside95      float64 `json:"upside_95"`
	ProbGain      float64 `json:"prob_gain"`
	Summary       string  `json:"summary"`
}

// PortfolioContext is the explainability verdict relative to holdings.
type PortfolioContext struct {
	IsHolding       bool    `json:"is_holding"`
	CurrentPosition float64 `json:"current_position"`
	SuggestedAction string  `json:"suggested_action"` // BUY, SELL, HOLD, REBALANCE
}

// AnalysisReport is the stock_analysis topic payload: deterministic
// skeleton plus the explainability synthesis.
type AnalysisReport struct {
	Meta struct {
		Type      string    `json:"type"`
		Query     string    `json:"query"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"meta"`

	Tickers       []string `json:"tickers"`
	AgentsInvoked []string `json:"agents_invoked"`

	TriggerSignal *TradeSignal       `json:"trigger_signal,omitempty"`
	TriggerNews   *NewsMessage       `json:"trigger_news,omitempty"`
	News          *NewsOutput        `json:"news_output,omitempty"`
	Twitter       *TwitterOutput     `json:"twitter_output,omitempty"`
	Technical     *TechnicalOutput   `json:"technical_output,omitempty"`
	Fundamental   *FundamentalOutput `json:"fundamental_output,omitempty"`
	MonteCarlo    *MonteCarloOutput  `json:"montecarlo_output,omitempty"`

	PortfolioContext *PortfolioContext `json:"portfolio_context,omitempty"`
	Summary          string            `json:"summary"`

	ShouldPublish  bool   `json:"should_publish"`
	ConflictReason string `json:"conflict_reason,omitempty"`
}
