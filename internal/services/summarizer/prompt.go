package summarizer

import (
	"fmt"
	"strings"

	"github.com/finpulse/finpulse/internal/models"
)

const promptContentClamp = 4000

// BuildPrompt renders the strict-JSON summarization prompt for one enriched
// article. Poor-quality content gets an explicit warning so the model leans
// on the title.
func BuildPrompt(article *models.Article) string {
	company := strings.ToUpper(article.Company)

	content := article.Content
	if len(content) > promptContentClamp {
		content = content[:promptContentClamp]
	}

	qualityWarning := ""
	if article.ContentQuality == models.QualityPoor || len(article.Content) < 200 {
		qualityWarning = "\n**WARNING:** Content fetch may have failed - analyze title carefully."
	}

	return fmt.Sprintf(`You are a strict financial analyst AI. First determine if this news is DIRECTLY RELEVANT to %[1]s company's business operations, financials, or stock price.%[2]s

**Company:** %[1]s
**Title:** %[3]s
**Content:** %[4]s
**Factor Type:** %[5]s

**RELEVANCE CRITERIA:**
- Article MUST be primarily about %[1]s
- NOT just a brief mention or peripheral reference
- NOT generic industry news unless %[1]s is also impacted
- NOT spam, press releases, or promotional content

**Required Output (JSON only):**
{
    "is_relevant": true/false,
    "relevance_reason": "specific reason why relevant/irrelevant",
    "summary": "2-3 sentence summary (or 'Not relevant to %[6]s' if irrelevant)",
    "key_points": ["Point 1", "Point 2"] or [],
    "financial_metrics": {
        "revenue_impact": "positive/negative/neutral/unknown",
        "stock_price_impact": "bullish/bearish/neutral/unknown",
        "confidence": "high/medium/low"
    },
    "impact_assessment": "1 sentence on market impact (or 'Not relevant' if irrelevant)"
}

Be STRICT. If unsure, mark is_relevant as false. Respond with JSON only.`,
		company, qualityWarning, article.Title, content, factorOrUnknown(article.FactorType), article.Company)
}

func factorOrUnknown(factorType string) string {
	if factorType == "" {
		return "unknown"
	}
	return factorType
}
