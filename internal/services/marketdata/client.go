// Package marketdata implements the broker market-data API client: candle
// history and last-traded-price lookups, rate limited per ticker.
package marketdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	defaultBaseURL   = "https://api.kite.trade"
	defaultExchange  = "NSE"
	defaultRateLimit = time.Second
	defaultTimeout   = 30 * time.Second

	apiTimeFormat = "2006-01-02 15:04:05"
)

// ErrUnknownInstrument is returned when a ticker has no instrument token.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Client talks to the Kite-style market-data HTTP API.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	exchange    string
	httpClient  *http.Client
	logger      arbor.ILogger

	spacing time.Duration
	mu      sync.Mutex
	limits  map[string]*rate.Limiter

	instruments map[string]int64
}

// NewClient builds the client and loads the instrument token map when one is
// configured. Unknown tickers fail per-call, not at construction.
func NewClient(config *common.MarketDataConfig, logger arbor.ILogger) (*Client, error) {
	c := &Client{
		baseURL:     config.BaseURL,
		apiKey:      config.APIKey,
		accessToken: config.AccessToken,
		exchange:    config.Exchange,
		logger:      logger,
		spacing:     common.DurationOr(config.RateLimit, defaultRateLimit),
		limits:      make(map[string]*rate.Limiter),
		instruments: make(map[string]int64),
		httpClient: &http.Client{
			Timeout: common.DurationOr(config.RequestTimeout, defaultTimeout),
		},
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.exchange == "" {
		c.exchange = defaultExchange
	}

	if config.InstrumentsCSV != "" {
		if err := c.loadInstruments(config.InstrumentsCSV); err != nil {
			return nil, err
		}
		logger.Info().Int("instruments", len(c.instruments)).Msg("Instrument map loaded")
	}
	return c, nil
}

var _ interfaces.MarketDataClient = (*Client)(nil)

// loadInstruments reads the broker instrument dump: instrument_token and
// tradingsymbol columns, other columns ignored.
func (c *Client) loadInstruments(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open instruments csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read instruments header: %w", err)
	}
	tokenCol, symbolCol := -1, -1
	for i, name := range header {
		switch name {
		case "instrument_token":
			tokenCol = i
		case "tradingsymbol":
			symbolCol = i
		}
	}
	if tokenCol < 0 || symbolCol < 0 {
		return fmt.Errorf("instruments csv missing instrument_token/tradingsymbol columns")
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read instruments csv: %w", err)
		}
		token, err := strconv.ParseInt(record[tokenCol], 10, 64)
		if err != nil {
			continue
		}
		c.instruments[record[symbolCol]] = token
	}
}

// limiter returns the per-ticker limiter, creating it on first use.
func (c *Client) limiter(ticker string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limits[ticker]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.spacing), 1)
		c.limits[ticker] = l
	}
	return l
}

type historicalResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles [][]any `json:"candles"`
	} `json:"data"`
}

// Candles fetches interval bars for the ticker between from and to.
func (c *Client) Candles(ctx context.Context, ticker, interval string, from, to time.Time) ([]models.Candle, error) {
	token, ok := c.instruments[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, ticker)
	}
	if err := c.limiter(ticker).Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/instruments/historical/%d/%s", c.baseURL, token, interval)
	query := url.Values{
		"from": []string{from.Format(apiTimeFormat)},
		"to":   []string{to.Format(apiTimeFormat)},
	}

	var resp historicalResponse
	if err := c.get(ctx, endpoint+"?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(resp.Data.Candles))
	for _, row := range resp.Data.Candles {
		candle, err := parseCandleRow(ticker, row)
		if err != nil {
			c.logger.Warn().Str("ticker", ticker).Err(err).Msg("Skipping malformed candle")
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

type ltpResponse struct {
	Status string `json:"status"`
	Data   map[string]struct {
		LastPrice float64 `json:"last_price"`
	} `json:"data"`
}

// LastPrice returns the last traded price for the ticker.
func (c *Client) LastPrice(ctx context.Context, ticker string) (float64, error) {
	if err := c.limiter(ticker).Wait(ctx); err != nil {
		return 0, err
	}

	instrument := c.exchange + ":" + ticker
	endpoint := c.baseURL + "/quote/ltp?i=" + url.QueryEscape(instrument)

	var resp ltpResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return 0, err
	}
	quote, ok := resp.Data[instrument]
	if !ok {
		return 0, fmt.Errorf("%w: no quote for %s", ErrUnknownInstrument, instrument)
	}
	return quote.LastPrice, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market data request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("market data API status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode market data response: %w", err)
	}
	return nil
}

// parseCandleRow decodes one [timestamp, o, h, l, c, volume] array entry.
func parseCandleRow(ticker string, row []any) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("candle row has %d fields", len(row))
	}
	raw, ok := row[0].(string)
	if !ok {
		return models.Candle{}, fmt.Errorf("candle timestamp is %T", row[0])
	}
	ts, err := parseAPITime(raw)
	if err != nil {
		return models.Candle{}, err
	}

	vals := make([]float64, 5)
	for i, cell := range row[1:6] {
		v, ok := toFloat(cell)
		if !ok {
			return models.Candle{}, fmt.Errorf("candle field %d is %T", i+1, cell)
		}
		vals[i] = v
	}
	return models.Candle{
		Ticker:    ticker,
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// parseAPITime accepts RFC3339 and the broker's +hhmm offset variant.
func parseAPITime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05-0700", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse candle timestamp %q: %w", raw, err)
	}
	return ts, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
