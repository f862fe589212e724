// Package enricher is the pipeline stage between raw headlines and the
// summarizer: dedup, content fetch, sentiment, feature extraction, and
// story clustering.
package enricher

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
	"github.com/finpulse/finpulse/internal/services/dedup"
)

const (
	minHashableContent = 100
	poorContentBelow   = 200
	sentimentBodyClamp = 2000
)

// Service polls unprocessed raw articles and enriches them.
type Service struct {
	articles  interfaces.ArticleStorage
	clusters  interfaces.ClusterStorage
	dedup     interfaces.DedupService
	fetcher   interfaces.FetcherService
	sentiment interfaces.SentimentService
	logger    arbor.ILogger

	pollInterval time.Duration
	batchSize    int
	sem          *semaphore.Weighted
}

func NewService(
	storage interfaces.StorageManager,
	dedupSvc interfaces.DedupService,
	fetcher interfaces.FetcherService,
	sentimentSvc interfaces.SentimentService,
	config *common.EnricherConfig,
	logger arbor.ILogger,
) *Service {
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 20
	}

	return &Service{
		articles:     storage.Articles(),
		clusters:     storage.Clusters(),
		dedup:        dedupSvc,
		fetcher:      fetcher,
		sentiment:    sentimentSvc,
		logger:       logger,
		pollInterval: common.DurationOr(config.PollInterval, 5*time.Second),
		batchSize:    batchSize,
		sem:          semaphore.NewWeighted(int64(concurrency)),
	}
}

// Run polls until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().
		Int("batch_size", s.batchSize).
		Str("poll_interval", s.pollInterval.String()).
		Msg("Enricher started")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Enricher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("Enrichment batch failed")
			}
		}
	}
}

// ProcessBatch enriches one poll's worth of raw articles concurrently.
func (s *Service) ProcessBatch(ctx context.Context) error {
	batch, err := s.articles.GetUnprocessed(ctx, s.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	s.logger.Debug().Int("count", len(batch)).Msg("Enriching batch")

	done := make(chan struct{}, len(batch))
	for i := range batch {
		article := batch[i]
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer s.sem.Release(1)
			defer func() { done <- struct{}{} }()

			if s.ProcessArticle(ctx, &article) {
				if err := s.articles.MarkProcessed(ctx, article.ArticleID); err != nil {
					s.logger.Warn().Str("article_id", article.ArticleID).Err(err).Msg("Failed to mark processed")
				}
			}
		}()
	}

	for range batch {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ProcessArticle runs the per-article enrichment flow. Returns true when the
// article should be marked processed; false leaves it for the next poll.
func (s *Service) ProcessArticle(ctx context.Context, raw *models.RawArticle) bool {
	titleNormalized := dedup.NormalizeTitle(raw.Title)

	urlResult, err := s.dedup.CheckURL(ctx, raw.URL)
	if err != nil {
		s.logger.Warn().Str("article_id", raw.ArticleID).Err(err).Msg("URL dedup check failed")
		return false
	}
	if urlResult.Verdict == interfaces.VerdictURLDup {
		s.logger.Info().Str("company", raw.Company).Str("title", truncate(raw.Title, 40)).Msg("URL duplicate")
		return true
	}

	fetched := s.fetcher.Fetch(ctx, raw.URL)
	content := fetched.Content
	if content == "" {
		content = raw.Title
	}
	finalURL := fetched.FinalURL
	if finalURL == "" {
		finalURL = raw.URL
	}

	contentHash := ""
	if len(content) >= minHashableContent {
		contentResult, err := s.dedup.CheckContent(ctx, content)
		if err != nil {
			s.logger.Warn().Str("article_id", raw.ArticleID).Err(err).Msg("Content dedup check failed")
			return false
		}
		if contentResult.Verdict == interfaces.VerdictContentDup {
			s.logger.Info().Str("company", raw.Company).Str("title", truncate(raw.Title, 40)).Msg("Content duplicate")
			return true
		}
		contentHash = contentResult.ContentHash
	}

	titleResult, err := s.dedup.CheckTitle(ctx, raw.Title, raw.Company, raw.PublishedAt)
	if err != nil {
		s.logger.Warn().Str("article_id", raw.ArticleID).Err(err).Msg("Title dedup check failed")
		return false
	}
	if titleResult.Verdict == interfaces.VerdictTitleDup && titleResult.ClusterID != "" {
		s.appendToCluster(ctx, titleResult.ClusterID, raw, fetched, finalURL)
		return true
	}

	contentQuality := models.QualityGood
	if len(content) < poorContentBelow {
		contentQuality = models.QualityPoor
		s.logger.Warn().
			Str("company", raw.Company).
			Int("content_length", len(content)).
			Str("title", truncate(raw.Title, 40)).
			Msg("Poor content quality")
	}

	body := content
	if len(body) > sentimentBodyClamp {
		body = body[:sentimentBodyClamp]
	}
	sentiment, err := s.sentiment.Analyze(ctx, raw.Title+". "+body, raw.Title)
	if err != nil {
		s.logger.Warn().Str("article_id", raw.ArticleID).Err(err).Msg("Sentiment analysis failed")
		return false
	}

	features := ExtractFeatures(raw.Title, content, sentiment, raw.FactorType)
	clusterID := GenerateClusterID(titleNormalized, raw.Company, raw.FactorType, raw.PublishedAt)

	if err := s.dedup.RegisterTitle(ctx, raw.Title, raw.Company, raw.PublishedAt, clusterID); err != nil {
		s.logger.Warn().Str("article_id", raw.ArticleID).Err(err).Msg("Title registration failed")
		return false
	}
	if err := s.articles.RegisterURL(ctx, &models.URLRegistryEntry{
		URLHash:   urlResult.URLHash,
		ArticleID: raw.ArticleID,
		ScrapedAt: raw.ScrapedAt,
	}); err != nil {
		s.logger.Warn().Str("article_id", raw.ArticleID).Err(err).Msg("URL registration failed")
		return false
	}

	publisherName := fetched.PublisherName
	if publisherName == "" {
		publisherName = raw.Source
	}

	enriched := &models.Article{
		ArticleID:       raw.ArticleID,
		URL:             finalURL,
		URLHash:         urlResult.URLHash,
		Title:           raw.Title,
		CanonicalURL:    raw.URL,
		Company:         raw.Company,
		FactorType:      raw.FactorType,
		PublisherName:   publisherName,
		PublisherIcon:   fetched.PublisherIcon,
		Author:          fetched.Author,
		Content:         content,
		ContentHash:     contentHash,
		ContentQuality:  contentQuality,
		Sentiment:       sentiment,
		SentimentLabel:  sentiment.Label,
		LiquidityImpact: features.LiquidityImpact,
		CriticalEvents:  features.CriticalEvents,
		Decisions:       features.Decisions,
		ClusterID:       clusterID,
		PublishedAt:     raw.PublishedAt,
		FetchedAt:       time.Now().UTC(),
		EnrichedAt:      time.Now().UTC(),
	}
	if err := s.articles.UpsertEnriched(ctx, enriched); err != nil {
		s.logger.Warn().Str("article_id", raw.ArticleID).Err(err).Msg("Enriched upsert failed")
		return false
	}

	if err := s.upsertCluster(ctx, clusterID, raw, enriched, fetched, finalURL, features); err != nil {
		s.logger.Warn().Str("cluster_id", clusterID).Err(err).Msg("Cluster upsert failed")
		return false
	}

	s.logger.Info().
		Str("company", raw.Company).
		Str("title", truncate(raw.Title, 40)).
		Str("sentiment", sentiment.Label).
		Str("impact", features.LiquidityImpact).
		Msg("Article enriched")
	return true
}

// appendToCluster records an additional publisher on a fuzzy title match.
func (s *Service) appendToCluster(ctx context.Context, clusterID string, raw *models.RawArticle, fetched models.FetchResult, finalURL string) {
	name := fetched.PublisherName
	if name == "" {
		name = raw.Source
	}
	pub := models.PublisherRef{
		Name:        name,
		URL:         finalURL,
		Icon:        fetched.PublisherIcon,
		PublishedAt: raw.PublishedAt,
	}
	if err := s.clusters.AppendPublisher(ctx, clusterID, pub, raw.Source, finalURL); err != nil {
		// The cluster may have been pruned; the duplicate is still a duplicate.
		s.logger.Warn().Str("cluster_id", clusterID).Err(err).Msg("Publisher append failed")
		return
	}
	s.logger.Info().
		Str("cluster_id", clusterID).
		Str("source", raw.Source).
		Str("title", truncate(raw.Title, 35)).
		Msg("Title duplicate clustered")
}

// upsertCluster creates the story cluster for a new unique article, or
// appends this publisher when the cluster already exists.
func (s *Service) upsertCluster(ctx context.Context, clusterID string, raw *models.RawArticle, enriched *models.Article, fetched models.FetchResult, finalURL string, features Features) error {
	pub := models.PublisherRef{
		Name:        enriched.PublisherName,
		URL:         finalURL,
		Icon:        fetched.PublisherIcon,
		PublishedAt: raw.PublishedAt,
	}

	if _, err := s.clusters.Get(ctx, clusterID); err == nil {
		return s.clusters.AppendPublisher(ctx, clusterID, pub, raw.Source, finalURL)
	} else if !errors.Is(err, interfaces.ErrClusterNotFound) {
		return err
	}

	now := time.Now().UTC()
	return s.clusters.Upsert(ctx, &models.StoryCluster{
		ClusterID:       clusterID,
		Title:           raw.Title,
		Company:         raw.Company,
		FactorType:      raw.FactorType,
		Sources:         []string{raw.Source},
		URLs:            []string{finalURL},
		Publishers:      []models.PublisherRef{pub},
		ArticleCount:    1,
		SentimentLabel:  enriched.SentimentLabel,
		LiquidityImpact: features.LiquidityImpact,
		CriticalEvents:  features.CriticalEvents,
		PublishedAt:     raw.PublishedAt,
		FirstSeen:       now,
		LastUpdated:     now,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
