package sentiment

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	defaultChunkSize = 450
	minBodyLength    = 200

	headWeight   = 0.70
	middleWeight = 0.30

	confidenceHighAbove   = 0.85
	confidenceMediumAbove = 0.65
)

// Service implements interfaces.SentimentService by sampling the article
// body (head chunk plus a middle chunk) and blending the model scores.
type Service struct {
	classifier interfaces.SentimentClassifier
	chunkSize  int
	logger     arbor.ILogger
}

func NewService(classifier interfaces.SentimentClassifier, config *common.SentimentConfig, logger arbor.ILogger) interfaces.SentimentService {
	chunkSize := defaultChunkSize
	if config != nil && config.ChunkSize > 0 {
		chunkSize = config.ChunkSize
	}
	return &Service{
		classifier: classifier,
		chunkSize:  chunkSize,
		logger:     logger,
	}
}

// Analyze classifies an article. Thin bodies fall back to the title; any
// classifier failure degrades to a neutral result rather than an error so
// one flaky model call can't stall enrichment.
func (s *Service) Analyze(ctx context.Context, text, title string) (models.Sentiment, error) {
	if len(text) < minBodyLength {
		if title == "" {
			return neutralSentiment(), nil
		}
		scores, err := s.classifier.Classify(ctx, title)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Title classification failed, defaulting to neutral")
			return neutralSentiment(), nil
		}
		// A headline alone is never decisive, however confident the model.
		result := fromScores(scores)
		result.Confidence = models.ConfidenceLow
		return result, nil
	}

	weighted, err := s.classifyChunks(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Chunk classification failed, defaulting to neutral")
		return neutralSentiment(), nil
	}
	return fromScores(weighted), nil
}

// classifyChunks scores the head of the article and a chunk from its
// middle, then blends them 70/30. Short bodies get the head chunk only.
func (s *Service) classifyChunks(ctx context.Context, text string) (map[string]float64, error) {
	head := text
	if len(head) > s.chunkSize {
		head = head[:s.chunkSize]
	}

	headScores, err := s.classifier.Classify(ctx, head)
	if err != nil {
		return nil, err
	}

	if len(text) <= s.chunkSize {
		return headScores, nil
	}

	mid := (len(text) - s.chunkSize) / 2
	middle := text[mid : mid+s.chunkSize]

	middleScores, err := s.classifier.Classify(ctx, middle)
	if err != nil {
		// Head alone still represents the article.
		s.logger.Debug().Err(err).Msg("Middle chunk classification failed, using head only")
		return headScores, nil
	}

	blended := make(map[string]float64, len(headScores))
	for label, score := range headScores {
		blended[label] = score * headWeight
	}
	for label, score := range middleScores {
		blended[label] += score * middleWeight
	}
	return blended, nil
}

// fromScores picks the top label and maps its score to a confidence band.
func fromScores(scores map[string]float64) models.Sentiment {
	if len(scores) == 0 {
		return neutralSentiment()
	}

	label := models.SentimentNeutral
	best := -1.0
	for l, score := range scores {
		if score > best {
			label, best = l, score
		}
	}

	confidence := models.ConfidenceLow
	switch {
	case best > confidenceHighAbove:
		confidence = models.ConfidenceHigh
	case best > confidenceMediumAbove:
		confidence = models.ConfidenceMedium
	}

	return models.Sentiment{
		Label:      label,
		Score:      best,
		Confidence: confidence,
		AllScores:  scores,
	}
}

func neutralSentiment() models.Sentiment {
	return models.Sentiment{
		Label:      models.SentimentNeutral,
		Score:      0.5,
		Confidence: models.ConfidenceLow,
		AllScores:  map[string]float64{models.SentimentNeutral: 0.5},
	}
}
