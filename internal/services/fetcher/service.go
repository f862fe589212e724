// Package fetcher resolves and downloads article bodies through a
// three-tier policy: aggregator URL decoding, pooled static HTTP fetch,
// then a headless browser for JS-only pages.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/models"
)

// Service implements interfaces.FetcherService.
type Service struct {
	config *common.FetcherConfig
	logger arbor.ILogger

	httpClient *http.Client
	globalSem  *semaphore.Weighted
	decoder    *decoder

	browserOnce sync.Once
	browserPool *BrowserPool
	browserErr  error

	requestTimeout time.Duration
	navTimeout     time.Duration
	jsWait         time.Duration
}

// cachedResolver memoizes DNS lookups with a fixed TTL so burst fetches to
// the same publishers don't hammer the resolver.
type cachedResolver struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]dnsEntry
}

type dnsEntry struct {
	addrs   []string
	expires time.Time
}

func (r *cachedResolver) lookup(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	if entry, ok := r.entries[host]; ok && time.Now().Before(entry.expires) {
		addrs := entry.addrs
		r.mu.Unlock()
		return addrs, nil
	}
	r.mu.Unlock()

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[host] = dnsEntry{addrs: addrs, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return addrs, nil
}

// NewService builds the fetch stack: shared HTTP pool with per-host and
// global caps, DNS cache, and the decoder worker pool. The browser pool is
// created lazily on first tier-3 escalation.
func NewService(config *common.FetcherConfig, logger arbor.ILogger) *Service {
	connectTimeout := common.DurationOr(config.ConnectTimeout, 10*time.Second)
	requestTimeout := common.DurationOr(config.RequestTimeout, 30*time.Second)
	dnsTTL := common.DurationOr(config.DNSCacheTTL, 5*time.Minute)

	resolver := &cachedResolver{ttl: dnsTTL, entries: make(map[string]dnsEntry)}
	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := &http.Transport{
		MaxConnsPerHost:     config.PerHostConcurrency,
		MaxIdleConnsPerHost: config.PerHostConcurrency,
		MaxIdleConns:        config.MaxConcurrentFetches,
		IdleConnTimeout:     90 * time.Second,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return dialer.DialContext(ctx, network, addr)
			}
			addrs, err := resolver.lookup(ctx, host)
			if err != nil || len(addrs) == 0 {
				return dialer.DialContext(ctx, network, addr)
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0], port))
		},
	}

	maxFetches := config.MaxConcurrentFetches
	if maxFetches <= 0 {
		maxFetches = 20
	}

	return &Service{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		globalSem:      semaphore.NewWeighted(int64(maxFetches)),
		decoder:        newDecoder(config.DecoderWorkers, logger),
		requestTimeout: requestTimeout,
		navTimeout:     common.DurationOr(config.NavigationTimeout, 30*time.Second),
		jsWait:         common.DurationOr(config.JavaScriptWaitTime, 3*time.Second),
	}
}

// Fetch runs the tier cascade. It never returns an error: on total failure
// the result carries empty content and the caller decides what that means.
func (s *Service) Fetch(ctx context.Context, rawURL string) models.FetchResult {
	target := rawURL
	viaAggregator := false

	// Tier 1: in-process decode of aggregator redirect URLs.
	if IsAggregatorURL(rawURL) {
		viaAggregator = true
		if decoded := s.decoder.Decode(ctx, rawURL); decoded != "" {
			target = decoded
			s.logger.Debug().Str("url", rawURL).Str("decoded", decoded).Msg("Decoded aggregator URL")
		}
	}

	// Tier 2: static HTTP fetch, skipped when we are still stuck on an
	// opaque aggregator URL.
	var result models.FetchResult
	if !IsAggregatorURL(target) {
		result = s.fetchStatic(ctx, target)
		if len(result.Content) >= s.minContent() {
			return result
		}
	}

	// Tier 3: headless browser, which also clicks through aggregator
	// redirects the decoder could not resolve.
	browserURL := target
	if viaAggregator && IsAggregatorURL(target) {
		browserURL = rawURL
	}
	if browserResult, ok := s.fetchWithBrowser(ctx, browserURL); ok {
		if len(browserResult.Content) > len(result.Content) {
			return browserResult
		}
	}

	if result.FinalURL == "" {
		result.FinalURL = target
	}
	return result
}

func (s *Service) minContent() int {
	if s.config.MinContentLength > 0 {
		return s.config.MinContentLength
	}
	return 200
}

func (s *Service) maxContent() int {
	if s.config.MaxContentLength > 0 {
		return s.config.MaxContentLength
	}
	return 5000
}

// fetchStatic performs the pooled HTTP fetch and extraction.
func (s *Service) fetchStatic(ctx context.Context, target string) models.FetchResult {
	result := models.FetchResult{FinalURL: target}

	if err := s.globalSem.Acquire(ctx, 1); err != nil {
		return result
	}
	defer s.globalSem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		s.logger.Debug().Str("url", target).Err(err).Msg("Bad fetch URL")
		return result
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug().Str("url", target).Err(err).Msg("HTTP fetch failed")
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug().Str("url", target).Int("status", resp.StatusCode).Msg("Non-200 fetch response")
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return result
	}

	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}

	s.populateFromHTML(&result, string(body))
	return result
}

// fetchWithBrowser escalates to the headless pool, initializing it on
// first use.
func (s *Service) fetchWithBrowser(ctx context.Context, target string) (models.FetchResult, bool) {
	s.browserOnce.Do(func() {
		s.browserPool, s.browserErr = NewBrowserPool(BrowserPoolConfig{
			MaxInstances:       s.config.BrowserInstances,
			UserAgent:          s.config.UserAgent,
			Headless:           s.config.Headless,
			NavigationTimeout:  s.navTimeout,
			JavaScriptWaitTime: s.jsWait,
		}, s.logger)
	})
	if s.browserErr != nil {
		s.logger.Warn().Err(s.browserErr).Msg("Browser pool unavailable, skipping tier 3")
		return models.FetchResult{}, false
	}

	html, finalURL, err := s.browserPool.Render(ctx, target, BrowserPoolConfig{
		NavigationTimeout:  s.navTimeout,
		JavaScriptWaitTime: s.jsWait,
	})
	if err != nil {
		s.logger.Debug().Str("url", target).Err(err).Msg("Browser fetch failed")
		return models.FetchResult{}, false
	}

	result := models.FetchResult{FinalURL: finalURL}
	if result.FinalURL == "" {
		result.FinalURL = target
	}
	s.populateFromHTML(&result, html)
	return result, true
}

func (s *Service) populateFromHTML(result *models.FetchResult, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Debug().Err(err).Msg("HTML parse failed")
		return
	}

	meta := extractMetadata(doc, result.FinalURL)
	result.PublisherName = meta.PublisherName
	result.Author = meta.Author
	result.PublishedDate = meta.PublishedDate
	result.PublisherIcon = meta.PublisherIcon
	result.Content = extractContent(doc, s.maxContent())
}

// Close shuts down the decoder and browser pools.
func (s *Service) Close() error {
	s.decoder.Close()
	if s.browserPool != nil {
		s.browserPool.Shutdown()
	}
	return nil
}

// Describe returns a short human-readable config summary for startup logs.
func (s *Service) Describe() string {
	return fmt.Sprintf("fetcher(global=%d per_host=%d timeout=%s)",
		s.config.MaxConcurrentFetches, s.config.PerHostConcurrency, s.requestTimeout)
}
