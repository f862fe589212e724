package models

import "time"

// FinancialMetrics is the summarizer's impact estimate for an article.
type FinancialMetrics struct {
	RevenueImpact    string `json:"revenue_impact"`
	StockPriceImpact string `json:"stock_price_impact"`
	Confidence       string `json:"confidence"`
}

// SummaryResponse is the strict-JSON payload the summarizer LLM must return.
type SummaryResponse struct {
	IsRelevant       bool             `json:"is_relevant"`
	RelevanceReason  string           `json:"relevance_reason"`
	Summary          string           `json:"summary"`
	KeyPoints        []string         `json:"key_points"`
	FinancialMetrics FinancialMetrics `json:"financial_metrics"`
	ImpactAssessment string           `json:"impact_assessment"`
}

// Summary is the persisted summary document, keyed by article id. Only
// relevant articles get one; irrelevant articles are marked summarized
// without a Summary being written.
type Summary struct {
	ArticleID string `json:"article_id" badgerhold:"key"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Company   string `json:"company" badgerhold:"index"`

	SentimentLabel      string  `json:"sentiment_label"`
	SentimentScore      float64 `json:"sentiment_score"`
	SentimentConfidence string  `json:"sentiment_confidence"`
	LiquidityImpact     string  `json:"liquidity_impact"`
	Decisions           []string `json:"decisions"`

	SummaryText      string           `json:"summary"`
	KeyPoints        []string         `json:"key_points"`
	FinancialMetrics FinancialMetrics `json:"financial_metrics"`
	ImpactAssessment string           `json:"impact_assessment"`
	RelevanceReason  string           `json:"relevance_reason,omitempty"`

	PublisherName string    `json:"publisher_name"`
	PublisherIcon string    `json:"publisher_icon,omitempty"`
	Author        string    `json:"author,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
	SummarizedAt  time.Time `json:"summarized_at"`
	WorkerID      string    `json:"worker_id"`
}

// NewsMessage is the summarized_news topic payload, keyed by company ticker.
type NewsMessage struct {
	ArticleID           string           `json:"article_id"`
	Title               string           `json:"title"`
	URL                 string           `json:"url"`
	Company             string           `json:"company"`
	SentimentLabel      string           `json:"sentiment_label"`
	SentimentScore      float64          `json:"sentiment_score"`
	SentimentConfidence string           `json:"sentiment_confidence"`
	FinancialMetrics    FinancialMetrics `json:"financial_metrics"`
	ImpactAssessment    string           `json:"impact_assessment"`
	LiquidityImpact     string           `json:"liquidity_impact"`
	Summary             string           `json:"summary"`
	KeyPoints           []string         `json:"key_points"`
	PublisherName       string           `json:"publisher_name"`
	PublisherIcon       string           `json:"publisher_icon,omitempty"`
	Author              string           `json:"author,omitempty"`
	PublishedAt         string           `json:"published_at"`
	Decisions           []string         `json:"decisions"`
}
