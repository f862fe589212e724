package models

import "time"

// PublisherRef is one publisher's copy of a clustered story.
type PublisherRef struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Icon        string    `json:"icon,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// StoryCluster groups near-duplicate articles about the same story.
// Created on the first unique article; later fuzzy-title matches append a
// publisher instead of creating a new article.
type StoryCluster struct {
	ClusterID  string `json:"cluster_id" badgerhold:"key"`
	Title      string `json:"title"`
	Company    string `json:"company" badgerhold:"index"`
	FactorType string `json:"factor_type"`

	Sources    []string       `json:"sources"`
	URLs       []string       `json:"urls"`
	Publishers []PublisherRef `json:"publishers"`

	ArticleCount    int      `json:"article_count"`
	SentimentLabel  string   `json:"sentiment_label"`
	LiquidityImpact string   `json:"liquidity_impact"`
	CriticalEvents  []string `json:"critical_events"`

	PublishedAt time.Time `json:"published_at" badgerhold:"index"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}
