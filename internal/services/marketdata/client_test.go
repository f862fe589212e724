package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
)

func writeInstruments(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.csv")
	data := "instrument_token,exchange_token,tradingsymbol,name\n" +
		"738561,2885,RELIANCE,RELIANCE INDUSTRIES\n" +
		"2953217,11536,TCS,TATA CONSULTANCY\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(&common.MarketDataConfig{
		BaseURL:        baseURL,
		APIKey:         "key",
		AccessToken:    "token",
		RateLimit:      "1ms",
		InstrumentsCSV: writeInstruments(t),
	}, common.GetLogger())
	require.NoError(t, err)
	return client
}

func TestCandles(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":"success","data":{"candles":[
			["2026-08-24T10:00:00+0530",99,101,98,100,1000],
			["2026-08-24T10:05:00+0530",100,102,99,101,1200]
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	candles, err := client.Candles(context.Background(), "RELIANCE", "5minute",
		time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC), time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/instruments/historical/738561/5minute", gotPath)
	assert.Equal(t, "token key:token", gotAuth)
	require.Len(t, candles, 2)
	assert.Equal(t, "RELIANCE", candles[0].Ticker)
	assert.Equal(t, 100.0, candles[0].Close)
	assert.Equal(t, 1200.0, candles[1].Volume)
	assert.Equal(t, 10, candles[0].Timestamp.Hour())
}

func TestCandles_UnknownTicker(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")
	_, err := client.Candles(context.Background(), "NOPE", "5minute", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestCandles_SkipsMalformedRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"candles":[
			["not a timestamp",99,101,98,100,1000],
			["2026-08-24T10:05:00+0530",100,102,99,101,1200]
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	candles, err := client.Candles(context.Background(), "TCS", "5minute", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestCandles_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":"error","message":"Invalid token"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Candles(context.Background(), "RELIANCE", "5minute", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestLastPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NSE:RELIANCE", r.URL.Query().Get("i"))
		w.Write([]byte(`{"status":"success","data":{"NSE:RELIANCE":{"instrument_token":738561,"last_price":2867.45}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	price, err := client.LastPrice(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 2867.45, price)
}

func TestLastPrice_MissingQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.LastPrice(context.Background(), "RELIANCE")
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}
