package models

import "time"

// Sentiment labels emitted by the classifier.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Liquidity impact categories derived from sentiment.
const (
	ImpactHighPositive     = "HIGH_POSITIVE"
	ImpactModeratePositive = "MODERATE_POSITIVE"
	ImpactHighNegative     = "HIGH_NEGATIVE"
	ImpactModerateNegative = "MODERATE_NEGATIVE"
	ImpactNeutral          = "NEUTRAL"
)

// Content quality buckets assigned during enrichment.
const (
	QualityGood = "good"
	QualityFair = "fair"
	QualityPoor = "poor"
)

// Classifier confidence bands.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// RawArticle is a headline record produced by the scraper, awaiting enrichment.
type RawArticle struct {
	ArticleID  string    `json:"article_id" badgerhold:"key"`
	URL        string    `json:"url" badgerhold:"index"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Company    string    `json:"company" badgerhold:"index"`
	FactorType string    `json:"factor_type"`

	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at" badgerhold:"index"`

	Processed   bool       `json:"processed" badgerhold:"index"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Sentiment is the weighted classification result for an article.
type Sentiment struct {
	Label      string             `json:"label"`
	Score      float64            `json:"score"`
	Confidence string             `json:"confidence"`
	AllScores  map[string]float64 `json:"all_scores"`
}

// Article is an enriched article: fetched content, sentiment, and derived
// trading features. Immutable once summarized.
type Article struct {
	// Identity
	ArticleID string `json:"article_id" badgerhold:"key"`
	URL       string `json:"url" badgerhold:"unique"`
	URLHash   string `json:"url_hash" badgerhold:"index"`

	// Source metadata
	Title         string `json:"title"`
	CanonicalURL  string `json:"canonical_url,omitempty"`
	Company       string `json:"company" badgerhold:"index"`
	FactorType    string `json:"factor_type" badgerhold:"index"`
	PublisherName string `json:"publisher_name" badgerhold:"index"`
	PublisherIcon string `json:"publisher_icon,omitempty"`
	Author        string `json:"author,omitempty"`

	// Content
	Content        string `json:"content"`
	ContentHash    string `json:"content_hash" badgerhold:"index"`
	ContentQuality string `json:"content_quality"`

	// Derived features
	Sentiment       Sentiment `json:"sentiment"`
	SentimentLabel  string    `json:"sentiment_label" badgerhold:"index"`
	LiquidityImpact string    `json:"liquidity_impact"`
	CriticalEvents  []string  `json:"critical_events"`
	Decisions       []string  `json:"decisions"`
	ClusterID       string    `json:"cluster_id" badgerhold:"index"`

	// Timestamps
	PublishedAt time.Time `json:"published_at" badgerhold:"index"`
	FetchedAt   time.Time `json:"fetched_at"`
	EnrichedAt  time.Time `json:"enriched_at"`

	// Summarizer handoff
	Summarized   bool       `json:"summarized" badgerhold:"index"`
	SummarizedAt *time.Time `json:"summarized_at,omitempty"`
}

// FetchResult is the outcome of an article body fetch. Empty content is a
// valid outcome; the fetcher never returns an error to its caller.
type FetchResult struct {
	Content       string    `json:"content"`
	FinalURL      string    `json:"final_url"`
	PublisherName string    `json:"publisher_name"`
	Author        string    `json:"author"`
	PublishedDate time.Time `json:"published_date"`
	PublisherIcon string    `json:"publisher_icon"`
}

// URLRegistryEntry records a seen URL hash permanently (no TTL), the
// authoritative layer behind the bloom filter and KV reservations.
type URLRegistryEntry struct {
	URLHash   string    `json:"url_hash" badgerhold:"key"`
	ArticleID string    `json:"article_id"`
	ScrapedAt time.Time `json:"scraped_at"`
}
