package enricher

import (
	"strings"
	"time"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/models"
)

// Critical financial event keywords scanned over title+content.
var criticalEvents = map[string][]string{
	"earnings":           {"earnings", "quarterly report", "q1", "q2", "q3", "q4", "revenue", "profit"},
	"merger_acquisition": {"merger", "acquisition", "buyout", "takeover", "m&a"},
	"lawsuit":            {"lawsuit", "legal action", "sued", "court", "litigation"},
	"product_launch":     {"launch", "unveil", "announce", "new product", "release"},
	"executive_change":   {"ceo", "cfo", "cto", "resign", "appointed", "steps down", "retire"},
	"regulatory_action":  {"sec", "regulation", "regulatory", "compliance", "fine", "penalty"},
	"dividend":           {"dividend", "payout", "shareholder return"},
	"stock_split":        {"stock split", "share split"},
	"guidance":           {"guidance", "outlook", "forecast", "projection"},
	"rating_change":      {"upgrade", "downgrade", "rating", "analyst"},
	"partnership":        {"partnership", "collaboration", "joint venture", "alliance"},
	"restructuring":      {"restructuring", "layoff", "cost cutting", "reorganization"},
}

// Keyword scan order is fixed so decision output is deterministic.
var criticalEventOrder = []string{
	"earnings", "merger_acquisition", "lawsuit", "product_launch",
	"executive_change", "regulatory_action", "dividend", "stock_split",
	"guidance", "rating_change", "partnership", "restructuring",
}

var eventAlerts = map[string]string{
	"earnings":           "EARNINGS_ALERT",
	"merger_acquisition": "M&A_ALERT",
	"lawsuit":            "RISK_ALERT",
	"regulatory_action":  "REGULATORY_ALERT",
}

var factorSignals = map[string]string{
	"political":  "POLITICAL_FACTOR",
	"regulatory": "REGULATORY_FACTOR",
	"economic":   "ECONOMIC_FACTOR",
}

// Features holds the derived trading features for one article.
type Features struct {
	LiquidityImpact string
	CriticalEvents  []string
	Decisions       []string
}

// LiquidityImpact maps sentiment label and score to an impact category.
func LiquidityImpact(sentiment models.Sentiment) string {
	switch sentiment.Label {
	case models.SentimentPositive:
		if sentiment.Score > 0.8 {
			return models.ImpactHighPositive
		}
		return models.ImpactModeratePositive
	case models.SentimentNegative:
		if sentiment.Score > 0.8 {
			return models.ImpactHighNegative
		}
		return models.ImpactModerateNegative
	}
	return models.ImpactNeutral
}

// DetectCriticalEvents returns event types whose keywords appear in the
// title or body.
func DetectCriticalEvents(title, content string) []string {
	text := strings.ToLower(title + " " + content)

	var detected []string
	for _, eventType := range criticalEventOrder {
		for _, kw := range criticalEvents[eventType] {
			if strings.Contains(text, kw) {
				detected = append(detected, eventType)
				break
			}
		}
	}
	return detected
}

// GenerateDecisions derives decision tags from sentiment, impact, detected
// events, and the article's factor type.
func GenerateDecisions(sentiment models.Sentiment, liquidityImpact string, events []string, factorType string) []string {
	var decisions []string

	switch {
	case sentiment.Label == models.SentimentPositive && sentiment.Score > 0.7:
		decisions = append(decisions, "CONSIDER_BUY")
	case sentiment.Label == models.SentimentNegative && sentiment.Score > 0.7:
		decisions = append(decisions, "CONSIDER_SELL")
	default:
		decisions = append(decisions, "HOLD_MONITOR")
	}

	if strings.Contains(liquidityImpact, "HIGH") {
		decisions = append(decisions, "HIGH_VOLATILITY_EXPECTED")
	}

	for _, event := range []string{"earnings", "merger_acquisition", "lawsuit", "regulatory_action"} {
		if containsString(events, event) {
			decisions = append(decisions, eventAlerts[event])
		}
	}

	if signal, ok := factorSignals[factorType]; ok {
		decisions = append(decisions, signal)
	}

	return decisions
}

// ExtractFeatures runs the full feature derivation for one article.
func ExtractFeatures(title, content string, sentiment models.Sentiment, factorType string) Features {
	impact := LiquidityImpact(sentiment)
	events := DetectCriticalEvents(title, content)
	return Features{
		LiquidityImpact: impact,
		CriticalEvents:  events,
		Decisions:       GenerateDecisions(sentiment, impact, events, factorType),
	}
}

// GenerateClusterID builds the deterministic story cluster key from the
// normalized title, company, factor, and publication day.
func GenerateClusterID(titleNormalized, company, factorType string, publishedAt time.Time) string {
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}
	day := publishedAt.UTC().Format("2006-01-02")

	titleKey := titleNormalized
	if titleKey == "" {
		titleKey = "untitled"
	}
	if len(titleKey) > 50 {
		titleKey = titleKey[:50]
	}

	return "cluster_" + company + "_" + factorType + "_" + day + "_" + common.MD5Hex(titleKey)[:8]
}

func containsString(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
