package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string `toml:"environment"` // "development" or "production"

	Storage    StorageConfig    `toml:"storage"`
	Broker     BrokerConfig     `toml:"broker"`
	Logging    LoggingConfig    `toml:"logging"`
	Fetcher    FetcherConfig    `toml:"fetcher"`
	Sentiment  SentimentConfig  `toml:"sentiment"`
	Enricher   EnricherConfig   `toml:"enricher"`
	Summarizer SummarizerConfig `toml:"summarizer"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Signals    SignalsConfig    `toml:"signals"`
	Agents     AgentsConfig     `toml:"agents"`
	MarketData MarketDataConfig `toml:"market_data"`
	Gemini     GeminiConfig     `toml:"gemini"`
	Claude     ClaudeConfig     `toml:"claude"`
	LLM        LLMConfig        `toml:"llm"`
	Portfolio  PortfolioConfig  `toml:"portfolio"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// BrokerConfig configures the in-process topic broker.
type BrokerConfig struct {
	BufferSize   int    `toml:"buffer_size"`   // Per-subscription delivery buffer
	PollInterval string `toml:"poll_interval"` // Consumer poll cadence, e.g. "250ms"
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// FetcherConfig contains article fetch configuration: shared HTTP pool
// limits plus the headless browser fallback.
type FetcherConfig struct {
	UserAgent            string `toml:"user_agent"`
	MaxConcurrentFetches int    `toml:"max_concurrent_fetches"` // Global connection cap (default: 20)
	PerHostConcurrency   int    `toml:"per_host_concurrency"`   // Per-host connection cap (default: 5)
	ConnectTimeout       string `toml:"connect_timeout"`        // TCP connect timeout (default: "10s")
	RequestTimeout       string `toml:"request_timeout"`        // Total request timeout (default: "30s")
	DNSCacheTTL          string `toml:"dns_cache_ttl"`          // DNS cache entry lifetime (default: "5m")
	MinContentLength     int    `toml:"min_content_length"`     // Below this, escalate to browser (default: 200)
	MaxContentLength     int    `toml:"max_content_length"`     // Content clamp (default: 5000)
	BrowserInstances     int    `toml:"browser_instances"`      // Headless browser pool size (default: 2)
	Headless             bool   `toml:"headless"`               // Run browsers headless (default: true)
	NavigationTimeout    string `toml:"navigation_timeout"`     // Browser navigation timeout (default: "30s")
	JavaScriptWaitTime   string `toml:"javascript_wait_time"`   // Settle time after navigation (default: "3s")
	DecoderWorkers       int    `toml:"decoder_workers"`        // Aggregator URL decoder pool (default: 5)
}

// SentimentConfig points at the black-box classification model service.
type SentimentConfig struct {
	Endpoint       string `toml:"endpoint"`        // Model service URL
	ChunkSize      int    `toml:"chunk_size"`      // Characters per chunk (default: 450)
	RequestTimeout string `toml:"request_timeout"` // Per-chunk timeout (default: "30s")
}

type EnricherConfig struct {
	PollInterval string `toml:"poll_interval"` // Raw-article poll cadence (default: "5s")
	BatchSize    int    `toml:"batch_size"`    // Max articles per poll (default: 50)
	Concurrency  int    `toml:"concurrency"`   // Parallel enrichments (default: 20)
}

type SummarizerConfig struct {
	WorkerID     string `toml:"worker_id"`     // Logical worker identity in summary docs
	PollInterval string `toml:"poll_interval"` // Enriched-article poll cadence (default: "5s")
	BatchSize    int    `toml:"batch_size"`    // Max articles per poll (default: 50)
	Workers      int    `toml:"workers"`       // Parallel LLM workers (default: 10)
	QueueSize    int    `toml:"queue_size"`    // Internal dispatch queue bound (default: 100)
	RateLimitRPM int    `toml:"rate_limit_rpm"` // Requests per minute per worker (default: 60)
	MaxAttempts  int    `toml:"max_attempts"`  // LLM attempts before fallback summary (default: 3)
}

// PipelineConfig controls the indicator pipeline runtime.
type PipelineConfig struct {
	Tickers          []string `toml:"tickers"`           // Instruments to stream
	Interval         string   `toml:"interval"`          // Candle interval (default: "5minute")
	WindowDuration   string   `toml:"window_duration"`   // Sliding window span (default: "15h" = 5m x 180 bars)
	WindowHop        string   `toml:"window_hop"`        // Hop between emissions (default: "5m")
	LiveMode         bool     `toml:"live_mode"`         // Live broker poll vs CSV replay
	BacktestCSV      string   `toml:"backtest_csv"`      // Candle CSV for replay mode
	BacktestDelay    string   `toml:"backtest_delay"`    // Delay between replayed rows (default: "3s")
	PersistenceDir   string   `toml:"persistence_dir"`   // Snapshot directory
	SnapshotInterval string   `toml:"snapshot_interval"` // Snapshot cadence (default: "60s")
	HistoryCSV       string   `toml:"history_csv"`       // Append-only signal history file
	Timezone         string   `toml:"timezone"`          // Exchange timezone (default: "Asia/Kolkata")
	MarketOpen       string   `toml:"market_open"`       // "09:00"
	MarketClose      string   `toml:"market_close"`      // "15:45"
	PollDelay        string   `toml:"poll_delay"`        // Per-ticker delay in live polling (default: "1s")
	UniverseBatch    int      `toml:"universe_batch"`    // Universe bulk-upsert batch size (default: 50)
}

type SignalsConfig struct {
	BuyThreshold  int     `toml:"buy_threshold"`  // Votes required for BUY (default: 5)
	SellThreshold int     `toml:"sell_threshold"` // Votes required for SELL (default: 5)
	MLWeight      int     `toml:"ml_weight"`      // Votes added by the regressor (default: 3)
	MLEpsilon     float64 `toml:"ml_epsilon"`     // Dead zone around zero prediction (default: 0.01)
}

type AgentsConfig struct {
	MaxConcurrent     int    `toml:"max_concurrent"`      // Global concurrent analyses (default: 3)
	WorkerPoolSize    int    `toml:"worker_pool_size"`    // Blocking-work offload pool (default: 5)
	ShutdownTimeout   string `toml:"shutdown_timeout"`    // Drain deadline (default: "60s")
	SymbolsCSV        string `toml:"symbols_csv"`         // Local ticker symbol file for fuzzy matching
	MaxToolIterations int    `toml:"max_tool_iterations"` // Explainability tool-loop cap (default: 5)
	MonteCarloRuns    int    `toml:"montecarlo_runs"`     // Simulation count (default: 10000)
}

// MarketDataConfig points at the broker market-data API.
type MarketDataConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	AccessToken    string `toml:"access_token"`
	RateLimit      string `toml:"rate_limit"`      // Min spacing between polls per ticker (default: "1s")
	RequestTimeout string `toml:"request_timeout"` // (default: "30s")
	InstrumentsCSV string `toml:"instruments_csv"` // tradingsymbol -> instrument_token map
	Exchange       string `toml:"exchange"`        // Quote prefix (default: "NSE")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey  string `toml:"api_key"` // Google Gemini API key
	Model   string `toml:"model"`   // Model name (default: "gemini-2.0-flash-lite")
	Timeout string `toml:"timeout"` // Per-call timeout (default: "45s")
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`    // Anthropic API key
	Model     string `toml:"model"`      // Model name (default: "claude-haiku-3-5-20241022")
	MaxTokens int    `toml:"max_tokens"` // Max response tokens (default: 4096)
	Timeout   string `toml:"timeout"`    // Per-call timeout (default: "45s")
}

/// LLMConfig selects providers: primary for summarization and synthesis,
// decision for the orchestrator's routing parse.
type LLMConfig struct {
	DefaultProvider  string `toml:"default_provider" validate:"omitempty,oneof=gemini claude"`
	DecisionProvider string `toml:"decision_provider" validate:"omitempty,oneof=gemini claude"`
	DecisionAPIKey   string `toml:"decision_api_key"`
	MaxRetries       int    `toml:"max_retries"` // Transient-failure retries (default: 3)
	RetryBackoff     string `toml:"retry_backoff"` // Fixed backoff between retries (default: "2s")
}

type PortfolioConfig struct {
	Currency    string `toml:"currency"`     // Default portfolio currency (default: "INR")
	DefaultUser string `toml:"default_user"` // User whose portfolio grounds agent context (default: "default")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Broker: BrokerConfig{
			BufferSize:   256,
			PollInterval: "250ms",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Fetcher: FetcherConfig{
			UserAgent:            "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			MaxConcurrentFetches: 20,
			PerHostConcurrency:   5,
			ConnectTimeout:       "10s",
			RequestTimeout:       "30s",
			DNSCacheTTL:          "5m",
			MinContentLength:     200,
			MaxContentLength:     5000,
			BrowserInstances:     2,
			Headless:             true,
			NavigationTimeout:    "30s",
			JavaScriptWaitTime:   "3s",
			DecoderWorkers:       5,
		},
		Sentiment: SentimentConfig{
			ChunkSize:      450,
			RequestTimeout: "30s",
		},
		Enricher: EnricherConfig{
			PollInterval: "5s",
			BatchSize:    50,
			Concurrency:  20,
		},
		Summarizer: SummarizerConfig{
			WorkerID:     "worker-1",
			PollInterval: "5s",
			BatchSize:    50,
			Workers:      10,
			QueueSize:    100,
			RateLimitRPM: 60,
			MaxAttempts:  3,
		},
		Pipeline: PipelineConfig{
			Interval:         "5minute",
			WindowDuration:   "15h",
			WindowHop:        "5m",
			BacktestDelay:    "3s",
			PersistenceDir:   "./data/pipeline",
			SnapshotInterval: "60s",
			HistoryCSV:       "./data/signal_history.csv",
			Timezone:         "Asia/Kolkata",
			MarketOpen:       "09:00",
			MarketClose:      "15:45",
			PollDelay:        "1s",
			UniverseBatch:    50,
		},
		Signals: SignalsConfig{
			BuyThreshold:  5,
			SellThreshold: 5,
			MLWeight:      3,
			MLEpsilon:     0.01,
		},
		Agents: AgentsConfig{
			MaxConcurrent:     3,
			WorkerPoolSize:    5,
			ShutdownTimeout:   "60s",
			MaxToolIterations: 5,
			MonteCarloRuns:    10000,
		},
		MarketData: MarketDataConfig{
			RateLimit:      "1s",
			RequestTimeout: "30s",
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.0-flash-lite",
			Timeout: "45s",
		},
		Claude: ClaudeConfig{
			Model:     "claude-haiku-3-5-20241022",
			MaxTokens: 4096,
			Timeout:   "45s",
		},
		LLM: LLMConfig{
			DefaultProvider:  "gemini",
			DecisionProvider: "gemini",
			MaxRetries:       3,
			RetryBackoff:     "2s",
		},
		Portfolio: PortfolioConfig{
			Currency:    "INR",
			DefaultUser: "default",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FINPULSE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if badgerPath := os.Getenv("FINPULSE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("FINPULSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("FINPULSE_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}

	// API credentials
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("DECISION_API_KEY"); key != "" {
		config.LLM.DecisionAPIKey = key
	}
	if key := os.Getenv("MARKET_DATA_API_KEY"); key != "" {
		config.MarketData.APIKey = key
	}
	if token := os.Getenv("MARKET_DATA_ACCESS_TOKEN"); token != "" {
		config.MarketData.AccessToken = token
	}
	if endpoint := os.Getenv("SENTIMENT_ENDPOINT"); endpoint != "" {
		config.Sentiment.Endpoint = endpoint
	}

	// Rate-limit and concurrency knobs
	if v := os.Getenv("MAX_CONCURRENT_FETCHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Fetcher.MaxConcurrentFetches = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Summarizer.RateLimitRPM = n
		}
	}
	if v := os.Getenv("MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Agents.MaxConcurrent = n
		}
	}
	if v := os.Getenv("THREAD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Agents.WorkerPoolSize = n
		}
	}

	// Pipeline mode
	if v := os.Getenv("LIVE_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Pipeline.LiveMode = b
		}
	}
	if dir := os.Getenv("PERSISTENCE_DIR"); dir != "" {
		config.Pipeline.PersistenceDir = dir
	}
}

// Validate checks structural constraints. Fatal configuration errors
// surface at startup, not at first use.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Storage.Badger.Path == "" {
		return fmt.Errorf("invalid configuration: storage.badger.path is required")
	}
	if c.Summarizer.Workers <= 0 || c.Summarizer.RateLimitRPM <= 0 {
		return fmt.Errorf("invalid configuration: summarizer workers and rate_limit_rpm must be positive")
	}
	if _, err := ParseDuration(c.Pipeline.WindowDuration); err != nil {
		return fmt.Errorf("invalid configuration: pipeline.window_duration: %w", err)
	}
	if _, err := ParseDuration(c.Pipeline.WindowHop); err != nil {
		return fmt.Errorf("invalid configuration: pipeline.window_hop: %w", err)
	}
	return nil
}

// ParseDuration parses a duration string, erroring on empty input.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	return time.ParseDuration(s)
}

// DurationOr parses a duration string, falling back to def on empty or
// malformed input. Config durations are strings so TOML stays readable.
func DurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
