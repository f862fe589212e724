package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// renderHeaders are sent with every rendered navigation. Several Indian
// publishers serve stripped-down pages without an explicit locale.
var renderHeaders = network.Headers{
	"Accept-Language": "en-IN,en;q=0.9",
}

// BrowserPool manages headless browser contexts for JS-only pages,
// handing them out round-robin.
type BrowserPool struct {
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	mu               sync.Mutex
	currentIndex     int
	logger           arbor.ILogger
	initialized      bool
}

// BrowserPoolConfig holds configuration for the browser pool
type BrowserPoolConfig struct {
	MaxInstances       int
	UserAgent          string
	Headless           bool
	NavigationTimeout  time.Duration
	JavaScriptWaitTime time.Duration
}

// NewBrowserPool creates and initializes the pool. Instances that fail
// startup are skipped; the pool degrades to however many came up.
func NewBrowserPool(config BrowserPoolConfig, logger arbor.ILogger) (*BrowserPool, error) {
	if config.MaxInstances <= 0 {
		config.MaxInstances = 2
	}

	p := &BrowserPool{logger: logger}

	successCount := 0
	var lastErr error
	for i := 0; i < config.MaxInstances; i++ {
		if err := p.createInstance(config); err != nil {
			lastErr = err
			logger.Warn().Err(err).Int("browser_index", i).Msg("Failed to create browser instance")
			continue
		}
		successCount++
	}
	if successCount == 0 {
		p.cleanup()
		return nil, fmt.Errorf("failed to create any browser instances: %w", lastErr)
	}

	p.initialized = true
	logger.Info().
		Int("browsers_created", successCount).
		Int("requested", config.MaxInstances).
		Bool("headless", config.Headless).
		Msg("Browser pool initialized")
	return p, nil
}

func (p *BrowserPool) createInstance(config BrowserPoolConfig) error {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testTimeout := config.NavigationTimeout
	if testTimeout <= 0 {
		testTimeout = 30 * time.Second
	}
	testCtx, testCancel := context.WithTimeout(browserCtx, testTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup test: %w", err)
	}

	p.browsers = append(p.browsers, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)
	return nil
}

// get returns a browser context round-robin.
func (p *BrowserPool) get() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized || len(p.browsers) == 0 {
		return nil, fmt.Errorf("browser pool not initialized")
	}

	index := p.currentIndex % len(p.browsers)
	p.currentIndex = (p.currentIndex + 1) % len(p.browsers)
	return p.browsers[index], nil
}

// Render navigates to a URL and returns the settled page HTML. Navigation
// waits for body readiness then a JS settle delay; aggregator interstitials
// are given a chance to redirect by following the final location.
func (p *BrowserPool) Render(ctx context.Context, pageURL string, config BrowserPoolConfig) (html string, finalURL string, err error) {
	browserCtx, err := p.get()
	if err != nil {
		return "", "", err
	}

	timeout := config.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jsWait := config.JavaScriptWaitTime
	if jsWait <= 0 {
		jsWait = 3 * time.Second
	}

	navCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	// Stop if the caller gave up first.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-navCtx.Done():
		}
	}()

	err = chromedp.Run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(renderHeaders),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(jsWait),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		// Fallback: some pages never reach readiness; grab whatever loaded.
		fallbackCtx, fallbackCancel := context.WithTimeout(browserCtx, timeout)
		defer fallbackCancel()
		err = chromedp.Run(fallbackCtx,
			network.Enable(),
			network.SetExtraHTTPHeaders(renderHeaders),
			chromedp.Navigate(pageURL),
			chromedp.Sleep(jsWait),
			chromedp.Location(&finalURL),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			return "", "", fmt.Errorf("browser navigation failed: %w", err)
		}
	}

	return html, finalURL, nil
}

// Shutdown cleans up all browser instances.
func (p *BrowserPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}

	done := make(chan struct{})
	go func() {
		p.cleanup()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Msg("Browser pool shutdown timed out")
	}

	p.initialized = false
	p.logger.Debug().Msg("Browser pool shut down")
}

func (p *BrowserPool) cleanup() {
	for _, cancel := range p.browserCancels {
		cancel()
	}
	for _, cancel := range p.allocatorCancels {
		cancel()
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.currentIndex = 0
}
