package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
)

func writeSymbolsCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.csv")
	data := "instrument_token,tradingsymbol,name,exchange\n" +
		"738561,RELIANCE,RELIANCE INDUSTRIES,BSE\n" +
		"2953217,TCS,TATA CONSULTANCY SERVICES,BSE\n" +
		"341249,HDFCBANK,HDFC BANK,BSE\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func newTestResolver(t *testing.T) *TickerResolver {
	t.Helper()
	resolver, err := NewTickerResolver(writeSymbolsCSV(t), common.GetLogger())
	require.NoError(t, err)
	return resolver
}

func TestResolve_ExactSymbol(t *testing.T) {
	resolver := newTestResolver(t)
	assert.Equal(t, []string{"TCS"}, resolver.Resolve(context.Background(), []string{"TCS"}))
}

func TestResolve_FuzzyCompanyName(t *testing.T) {
	resolver := newTestResolver(t)

	// Corporate suffixes are noise; the remaining tokens fuzzy-match the
	// instrument name.
	got := resolver.Resolve(context.Background(), []string{"Reliance Industries Limited"})
	assert.Equal(t, []string{"RELIANCE"}, got)

	got = resolver.Resolve(context.Background(), []string{"Tata Consultancy Services Ltd"})
	assert.Equal(t, []string{"TCS"}, got)
}

func TestResolve_ManualIndexMap(t *testing.T) {
	resolver := newTestResolver(t)

	got := resolver.Resolve(context.Background(), []string{"NIFTY 50", "BSE SENSEX"})
	assert.Equal(t, []string{"NIFTY", "SENSEX"}, got)
}

func TestResolve_DeduplicatesOutput(t *testing.T) {
	resolver := newTestResolver(t)

	got := resolver.Resolve(context.Background(), []string{"TCS", "Tata Consultancy Services"})
	assert.Equal(t, []string{"TCS"}, got)
}

func TestResolve_RemoteFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("q"))
		w.Write([]byte(`{"quotes":[
			{"symbol":"INFY.NS","exchange":"NSE"},
			{"symbol":"INFY.BO","exchange":"BSE"}
		]}`))
	}))
	defer server.Close()

	resolver := newTestResolver(t)
	resolver.searchURL = server.URL

	got := resolver.Resolve(context.Background(), []string{"Infosys Technologies"})
	assert.Equal(t, []string{"INFY"}, got)
}

func TestResolve_RemoteIndexSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes":[{"symbol":"^BSESN","exchange":"BSE"}]}`))
	}))
	defer server.Close()

	resolver := newTestResolver(t)
	resolver.searchURL = server.URL

	got := resolver.Resolve(context.Background(), []string{"Bombay benchmark index"})
	assert.Equal(t, []string{"SENSEX"}, got)
}

func TestResolve_UnresolvableDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes":[]}`))
	}))
	defer server.Close()

	resolver := newTestResolver(t)
	resolver.searchURL = server.URL

	got := resolver.Resolve(context.Background(), []string{"Zzzz Qqqq Vvvv", ""})
	assert.Empty(t, got)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100, similarity("RELIANCE", "RELIANCE"))
	assert.Equal(t, 0, similarity("", ""))
	assert.Greater(t, similarity("RELIANCE INDUSTRIES", "RELIANCE INDUSTRIE"), 90)
	assert.Less(t, similarity("RELIANCE", "TCS"), 50)
}

func TestCleanCompanyName(t *testing.T) {
	assert.Equal(t, "RELIANCE INDUSTRIES", cleanCompanyName("Reliance Industries Limited"))
	assert.Equal(t, "HDFC BANK", cleanCompanyName("The HDFC Bank Ltd"))
	assert.Equal(t, "MAHINDRA", cleanCompanyName("mahindra pvt ltd india"))
}
