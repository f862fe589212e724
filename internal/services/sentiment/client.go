// Package sentiment scores financial text against a remote classification
// model, aggregating chunk scores into a single weighted label.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
)

// HTTPClassifier calls the model service over HTTP. The endpoint takes
// {"text": ...} and returns a list of {label, score} pairs.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
	logger   arbor.ILogger
}

type classifyRequest struct {
	Text string `json:"text"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func NewHTTPClassifier(config *common.SentimentConfig, logger arbor.ILogger) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: config.Endpoint,
		client: &http.Client{
			Timeout: common.DurationOr(config.RequestTimeout, 30*time.Second),
		},
		logger: logger,
	}
}

// Classify sends one chunk to the model and returns label -> score.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (map[string]float64, error) {
	payload, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, string(body))
	}

	var scores []labelScore
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	result := make(map[string]float64, len(scores))
	for _, s := range scores {
		result[s.Label] = s.Score
	}
	return result, nil
}
