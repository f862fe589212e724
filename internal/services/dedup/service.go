// Package dedup implements multi-layer duplicate detection for incoming
// articles: a bloom fast path over URL hashes, exact KV reservations with a
// 24-hour TTL, a permanent URL registry, and per-(company, day) fuzzy title
// matching against stored clusters.
package dedup

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
)

const (
	// TTL on KV reservations. The registry behind them is permanent.
	reservationTTL = 24 * time.Hour

	// Fuzzy title matching parameters.
	maxFuzzyScan       = 200
	titleSimilarity    = 0.65
	minHashableContent = 100
	contentHashPrefix  = 1000

	bloomKey       = "url_bloom_filter"
	bloomCapacity  = 10_000_000
	bloomFPRate    = 0.0001
	bloomFlushEach = 100 // insertions between persistence flushes
)

// Service implements interfaces.DedupService.
type Service struct {
	kv       interfaces.KeyValueStorage
	articles interfaces.ArticleStorage
	logger   arbor.ILogger

	mu        sync.Mutex
	filter    *bloom.BloomFilter
	unflushed int
}

// NewService loads the persisted bloom filter (or starts fresh on any load
// failure, which is safe because the KV and registry layers are
// authoritative) and returns the dedup service.
func NewService(kv interfaces.KeyValueStorage, articles interfaces.ArticleStorage, logger arbor.ILogger) *Service {
	s := &Service{
		kv:       kv,
		articles: articles,
		logger:   logger,
		filter:   bloom.NewWithEstimates(bloomCapacity, bloomFPRate),
	}

	data, err := kv.GetBytes(context.Background(), bloomKey)
	if err == nil && len(data) > 0 {
		loaded := bloom.NewWithEstimates(bloomCapacity, bloomFPRate)
		if _, err := loaded.ReadFrom(bytes.NewReader(data)); err != nil {
			logger.Warn().Err(err).Msg("Bloom filter unreadable, starting fresh")
		} else {
			s.filter = loaded
			logger.Info().Int64("approx_items", int64(loaded.ApproximatedSize())).Msg("Bloom filter loaded")
		}
	}

	return s
}

// CheckURL runs the URL dedup layers in order: bloom fast path, exact KV
// reservation, permanent registry. A bloom negative is definitively new.
// On NEW the key is reserved so concurrent duplicates race to one winner.
func (s *Service) CheckURL(ctx context.Context, rawURL string) (interfaces.DedupResult, error) {
	urlHash := common.MD5Hex(NormalizeURL(rawURL))
	result := interfaces.DedupResult{Verdict: interfaces.VerdictNew, URLHash: urlHash}

	s.mu.Lock()
	seen := s.filter.TestString(urlHash)
	s.filter.AddString(urlHash)
	s.unflushed++
	flush := s.unflushed >= bloomFlushEach
	if flush {
		s.unflushed = 0
	}
	s.mu.Unlock()

	if flush {
		if err := s.PersistBloom(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Bloom persistence failed")
		}
	}

	if !seen {
		// Definitively new. Reserve the exact key for concurrent checkers.
		if err := s.kv.SetWithTTL(ctx, "url:"+urlHash, "1", reservationTTL); err != nil {
			s.logger.Warn().Str("url_hash", urlHash).Err(err).Msg("URL reservation failed")
		}
		return result, nil
	}

	// Bloom positive: fall through to exact layers.
	_, err := s.kv.Get(ctx, "url:"+urlHash)
	if err == nil {
		result.Verdict = interfaces.VerdictURLDup
		return result, nil
	}
	if err != interfaces.ErrKeyNotFound {
		s.logger.Warn().Str("url_hash", urlHash).Err(err).Msg("KV check failed, falling through to registry")
	}

	registered, err := s.articles.IsURLRegistered(ctx, urlHash)
	if err != nil {
		// Registry failure: treat as NEW; downstream is idempotent by URL.
		s.logger.Warn().Str("url_hash", urlHash).Err(err).Msg("Registry check failed, treating as new")
	} else if registered {
		result.Verdict = interfaces.VerdictURLDup
		return result, nil
	}

	if err := s.kv.SetWithTTL(ctx, "url:"+urlHash, "1", reservationTTL); err != nil {
		s.logger.Warn().Str("url_hash", urlHash).Err(err).Msg("URL reservation failed")
	}
	return result, nil
}

// CheckContent hashes the first 1000 chars and checks the content
// namespace. Content under 100 chars is never hashed (fetch failures would
// all collide).
func (s *Service) CheckContent(ctx context.Context, content string) (interfaces.DedupResult, error) {
	result := interfaces.DedupResult{Verdict: interfaces.VerdictNew}
	if len(content) < minHashableContent {
		return result, nil
	}

	prefix := content
	if len(prefix) > contentHashPrefix {
		prefix = prefix[:contentHashPrefix]
	}
	contentHash := common.MD5Hex(prefix)
	result.ContentHash = contentHash

	_, err := s.kv.Get(ctx, "content:"+contentHash)
	if err == nil {
		result.Verdict = interfaces.VerdictContentDup
		return result, nil
	}
	if err != interfaces.ErrKeyNotFound {
		s.logger.Warn().Str("content_hash", contentHash).Err(err).Msg("Content KV check failed, treating as new")
		return result, nil
	}

	if err := s.kv.SetWithTTL(ctx, "content:"+contentHash, "1", reservationTTL); err != nil {
		s.logger.Warn().Str("content_hash", contentHash).Err(err).Msg("Content reservation failed")
	}
	return result, nil
}

// CheckTitle fuzzy-matches the normalized title against the most recent 200
// titles stored for (company, published day). A Levenshtein ratio at or
// above 0.65 is a duplicate and returns the matched cluster id.
func (s *Service) CheckTitle(ctx context.Context, title, company string, publishedAt time.Time) (interfaces.DedupResult, error) {
	result := interfaces.DedupResult{Verdict: interfaces.VerdictNew}

	normalized := NormalizeTitle(title)
	if normalized == "" {
		return result, nil
	}

	key := titlesKey(company, publishedAt)
	members, err := s.kv.SortedRecent(ctx, key, maxFuzzyScan)
	if err != nil {
		s.logger.Warn().Str("key", key).Err(err).Msg("Title scan failed, treating as new")
		return result, nil
	}

	for _, member := range members {
		stored, clusterID, ok := splitTitleMember(member)
		if !ok {
			continue
		}
		if similarityRatio(normalized, stored) >= titleSimilarity {
			result.Verdict = interfaces.VerdictTitleDup
			result.ClusterID = clusterID
			return result, nil
		}
	}

	return result, nil
}

// CheckAndReserve runs all three layers in order and returns the first
// duplicate verdict, or NEW with all keys reserved.
func (s *Service) CheckAndReserve(ctx context.Context, rawURL, title, content, company string, publishedAt time.Time) (interfaces.DedupResult, error) {
	result, err := s.CheckURL(ctx, rawURL)
	if err != nil || result.Verdict != interfaces.VerdictNew {
		return result, err
	}

	contentResult, err := s.CheckContent(ctx, content)
	if err != nil {
		return result, err
	}
	result.ContentHash = contentResult.ContentHash
	if contentResult.Verdict != interfaces.VerdictNew {
		result.Verdict = contentResult.Verdict
		return result, nil
	}

	titleResult, err := s.CheckTitle(ctx, title, company, publishedAt)
	if err != nil {
		return result, err
	}
	if titleResult.Verdict != interfaces.VerdictNew {
		result.Verdict = titleResult.Verdict
		result.ClusterID = titleResult.ClusterID
	}
	return result, nil
}

// RegisterTitle stores a normalized title under its cluster for future
// fuzzy matching, scored by ingestion time.
func (s *Service) RegisterTitle(ctx context.Context, title, company string, publishedAt time.Time, clusterID string) error {
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return nil
	}

	key := titlesKey(company, publishedAt)
	member := normalized + "|" + clusterID
	if err := s.kv.SortedAdd(ctx, key, member, float64(time.Now().UnixNano())/1e9, reservationTTL); err != nil {
		return fmt.Errorf("failed to register title: %w", err)
	}
	return nil
}

// PersistBloom serializes the bloom filter into the KV store.
func (s *Service) PersistBloom(ctx context.Context) error {
	s.mu.Lock()
	var buf bytes.Buffer
	_, err := s.filter.WriteTo(&buf)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to serialize bloom filter: %w", err)
	}

	if err := s.kv.SetBytes(ctx, bloomKey, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to persist bloom filter: %w", err)
	}
	return nil
}

func titlesKey(company string, publishedAt time.Time) string {
	return "titles:" + strings.ToLower(company) + ":" + publishedAt.UTC().Format("2006-01-02")
}

// splitTitleMember parses "normalized title|cluster_id". Cluster ids carry
// no pipes, so split on the last one.
func splitTitleMember(member string) (title, clusterID string, ok bool) {
	idx := strings.LastIndex(member, "|")
	if idx <= 0 || idx == len(member)-1 {
		return "", "", false
	}
	return member[:idx], member[idx+1:], true
}

// similarityRatio is 1 - distance/maxLen over runes.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}
