package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finpulse/finpulse/internal/models"
)

// rawResponse mirrors models.SummaryResponse with a pointer relevance flag:
// models that omit the field are treated as relevant rather than silently
// discarded.
type rawResponse struct {
	IsRelevant       *bool                   `json:"is_relevant"`
	RelevanceReason  string                  `json:"relevance_reason"`
	Summary          string                  `json:"summary"`
	KeyPoints        []string                `json:"key_points"`
	FinancialMetrics models.FinancialMetrics `json:"financial_metrics"`
	ImpactAssessment string                  `json:"impact_assessment"`
}

// ParseResponse decodes a model reply, tolerating markdown code fences.
func ParseResponse(text string) (models.SummaryResponse, error) {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var raw rawResponse
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return models.SummaryResponse{}, fmt.Errorf("failed to parse summary response: %w", err)
	}

	relevant := true
	if raw.IsRelevant != nil {
		relevant = *raw.IsRelevant
	}

	return models.SummaryResponse{
		IsRelevant:       relevant,
		RelevanceReason:  raw.RelevanceReason,
		Summary:          raw.Summary,
		KeyPoints:        raw.KeyPoints,
		FinancialMetrics: raw.FinancialMetrics,
		ImpactAssessment: raw.ImpactAssessment,
	}, nil
}

// FallbackResponse is stored when all LLM attempts fail, so the article is
// not re-processed forever.
func FallbackResponse() models.SummaryResponse {
	return models.SummaryResponse{
		IsRelevant:       true,
		Summary:          "Processing failed",
		KeyPoints:        []string{},
		ImpactAssessment: "Error",
	}
}
