// Package summarizer drains enriched articles through an LLM worker pool,
// persisting summaries and publishing relevant ones to the news topic.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const minSummarizableContent = 100

// Service implements the summarization worker pool.
type Service struct {
	articles  interfaces.ArticleStorage
	summaries interfaces.SummaryStorage
	provider  interfaces.LLMProvider
	producer  interfaces.Producer
	logger    arbor.ILogger

	workerID     string
	pollInterval time.Duration
	batchSize    int
	workers      int
	queueSize    int
	maxAttempts  int
	// One limiter per worker: each worker spaces its own requests at the
	// configured RPM, so aggregate throughput scales with the pool width.
	limiters []*rate.Limiter
}

func NewService(
	storage interfaces.StorageManager,
	provider interfaces.LLMProvider,
	producer interfaces.Producer,
	config *common.SummarizerConfig,
	logger arbor.ILogger,
) *Service {
	workers := config.Workers
	if workers <= 0 {
		workers = 10
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	rpm := config.RateLimitRPM
	if rpm <= 0 {
		rpm = 60
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	workerID := config.WorkerID
	if workerID == "" {
		workerID = "worker-1"
	}

	limiters := make([]*rate.Limiter, workers)
	for i := range limiters {
		limiters[i] = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
	}

	return &Service{
		articles:     storage.Articles(),
		summaries:    storage.Summaries(),
		provider:     provider,
		producer:     producer,
		logger:       logger,
		workerID:     workerID,
		pollInterval: common.DurationOr(config.PollInterval, 5*time.Second),
		batchSize:    batchSize,
		workers:      workers,
		queueSize:    queueSize,
		maxAttempts:  maxAttempts,
		limiters:     limiters,
	}
}

// Run polls for unsummarized articles and drains each batch through the
// worker pool before polling again.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().
		Int("workers", s.workers).
		Int("batch_size", s.batchSize).
		Str("provider", s.provider.Name()).
		Msg("Summarizer started")

	type job struct {
		article models.Article
		wg      *sync.WaitGroup
	}
	queue := make(chan job, s.queueSize)

	var workerWG sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		workerWG.Add(1)
		go func(workerIndex int) {
			defer workerWG.Done()
			for j := range queue {
				s.processArticle(ctx, &j.article, workerIndex)
				j.wg.Done()
			}
		}(i)
	}
	defer func() {
		close(queue)
		workerWG.Wait()
		s.logger.Info().Msg("Summarizer stopped")
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		batch, err := s.articles.GetUnsummarized(ctx, s.batchSize)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Unsummarized poll failed")
			continue
		}
		if len(batch) == 0 {
			continue
		}

		s.logger.Info().Int("count", len(batch)).Msg("Summarizing batch")

		var batchWG sync.WaitGroup
		for i := range batch {
			batchWG.Add(1)
			select {
			case queue <- job{article: batch[i], wg: &batchWG}:
			case <-ctx.Done():
				batchWG.Done()
				return ctx.Err()
			}
		}
		batchWG.Wait()
	}
}

// processArticle runs one article through the LLM with retry and fallback.
func (s *Service) processArticle(ctx context.Context, article *models.Article, workerIndex int) {
	if len(article.Content) < minSummarizableContent {
		s.logger.Warn().
			Str("company", article.Company).
			Int("content_length", len(article.Content)).
			Str("title", truncate(article.Title, 40)).
			Msg("Skipping summary, content too short")
		s.markSummarized(ctx, article.ArticleID)
		return
	}

	if err := s.limiters[workerIndex%len(s.limiters)].Wait(ctx); err != nil {
		return
	}

	response, err := s.summarizeWithRetry(ctx, article)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error().
			Str("article_id", article.ArticleID).
			Err(err).
			Msg("All summary attempts failed, storing fallback")
		response = FallbackResponse()
	}

	if !response.IsRelevant {
		s.logger.Warn().
			Str("company", article.Company).
			Str("title", truncate(article.Title, 40)).
			Str("reason", response.RelevanceReason).
			Msg("Article irrelevant, skipping summary")
		s.markSummarized(ctx, article.ArticleID)
		return
	}

	summary := s.buildSummary(article, response, workerIndex)
	if err := s.summaries.Upsert(ctx, summary); err != nil {
		s.logger.Warn().Str("article_id", article.ArticleID).Err(err).Msg("Summary upsert failed")
		return
	}
	s.markSummarized(ctx, article.ArticleID)
	s.publish(ctx, article, summary)

	s.logger.Info().
		Str("company", article.Company).
		Str("title", truncate(article.Title, 40)).
		Int("worker", workerIndex).
		Msg("Article summarized")
}

func (s *Service) summarizeWithRetry(ctx context.Context, article *models.Article) (models.SummaryResponse, error) {
	prompt := BuildPrompt(article)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		reply, err := s.provider.Complete(ctx, prompt)
		if err != nil {
			lastErr = err
		} else {
			response, parseErr := ParseResponse(reply)
			if parseErr == nil {
				return response, nil
			}
			lastErr = parseErr
		}

		if ctx.Err() != nil {
			return models.SummaryResponse{}, ctx.Err()
		}
		s.logger.Warn().
			Str("article_id", article.ArticleID).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("Summary attempt failed")
	}
	return models.SummaryResponse{}, fmt.Errorf("summary failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Service) buildSummary(article *models.Article, response models.SummaryResponse, workerIndex int) *models.Summary {
	return &models.Summary{
		ArticleID:           article.ArticleID,
		Title:               article.Title,
		URL:                 article.URL,
		Company:             article.Company,
		SentimentLabel:      article.SentimentLabel,
		SentimentScore:      article.Sentiment.Score,
		SentimentConfidence: article.Sentiment.Confidence,
		LiquidityImpact:     article.LiquidityImpact,
		Decisions:           article.Decisions,
		SummaryText:         response.Summary,
		KeyPoints:           response.KeyPoints,
		FinancialMetrics:    response.FinancialMetrics,
		ImpactAssessment:    response.ImpactAssessment,
		RelevanceReason:     response.RelevanceReason,
		PublisherName:       article.PublisherName,
		PublisherIcon:       article.PublisherIcon,
		Author:              article.Author,
		PublishedAt:         article.PublishedAt,
		SummarizedAt:        time.Now().UTC(),
		WorkerID:            fmt.Sprintf("%s_%d", s.workerID, workerIndex),
	}
}

// publish puts the summarized article on the news topic keyed by company.
func (s *Service) publish(ctx context.Context, article *models.Article, summary *models.Summary) {
	if s.producer == nil {
		return
	}
	msg := models.NewsMessage{
		ArticleID:           summary.ArticleID,
		Title:               summary.Title,
		URL:                 summary.URL,
		Company:             summary.Company,
		SentimentLabel:      summary.SentimentLabel,
		SentimentScore:      summary.SentimentScore,
		SentimentConfidence: summary.SentimentConfidence,
		FinancialMetrics:    summary.FinancialMetrics,
		ImpactAssessment:    summary.ImpactAssessment,
		LiquidityImpact:     summary.LiquidityImpact,
		Summary:             summary.SummaryText,
		KeyPoints:           summary.KeyPoints,
		PublisherName:       summary.PublisherName,
		PublisherIcon:       summary.PublisherIcon,
		Author:              summary.Author,
		PublishedAt:         article.PublishedAt.UTC().Format(time.RFC3339),
		Decisions:           summary.Decisions,
	}
	if err := s.producer.Publish(ctx, interfaces.TopicSummarizedNews, summary.Company, msg); err != nil {
		s.logger.Warn().Str("article_id", summary.ArticleID).Err(err).Msg("News publish failed")
	}
}

func (s *Service) markSummarized(ctx context.Context, articleID string) {
	if err := s.articles.MarkSummarized(ctx, articleID); err != nil {
		s.logger.Warn().Str("article_id", articleID).Err(err).Msg("Failed to mark summarized")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
