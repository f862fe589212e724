package agents

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
)

const (
	fuzzyMatchThreshold = 90
	remoteSearchURL     = "https://query2.finance.yahoo.com/v1/finance/search"
	searchUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// Index names map straight to their symbols without fuzzy matching.
var manualTickerMap = map[string]string{
	"SENSEX":     "SENSEX",
	"BSE SENSEX": "SENSEX",
	"NIFTY 50":   "NIFTY",
	"NIFTY":      "NIFTY",
}

var noiseWords = regexp.MustCompile(`\b(LIMITED|LTD|PRIVATE|PVT|INDIA|IND|THE)\b`)

// remote exchange preference, most liquid listing first
var exchangePriority = []string{"BSE", "NSE"}

// TickerResolver maps free-form company names to exchange symbols. Local
// fuzzy matching over the instrument dump comes first, the remote symbol
// search is a fallback for names the dump does not cover.
type TickerResolver struct {
	names      map[string]string // company name -> tradingsymbol
	nameList   []string
	symbols    map[string]struct{}
	symbolList []string

	searchURL  string
	httpClient *http.Client
	logger     arbor.ILogger
}

var _ interfaces.TickerResolver = (*TickerResolver)(nil)

// NewTickerResolver loads the instrument dump at path. An empty path yields
// a resolver that only uses the manual map and the remote fallback.
func NewTickerResolver(path string, logger arbor.ILogger) (*TickerResolver, error) {
	r := &TickerResolver{
		names:     make(map[string]string),
		symbols:   make(map[string]struct{}),
		searchURL: remoteSearchURL,
		httpClient: &http.Client{
			Timeout: defaultAgentTimeout,
		},
		logger: logger,
	}
	if path != "" {
		if err := r.loadSymbols(path); err != nil {
			return nil, err
		}
		logger.Info().
			Int("names", len(r.nameList)).
			Int("symbols", len(r.symbolList)).
			Msg("Ticker symbol table loaded")
	}
	return r, nil
}

// loadSymbols reads tradingsymbol and name columns from the instrument CSV.
func (r *TickerResolver) loadSymbols(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open symbols csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read symbols header: %w", err)
	}
	symbolCol, nameCol := -1, -1
	for i, col := range header {
		switch col {
		case "tradingsymbol":
			symbolCol = i
		case "name":
			nameCol = i
		}
	}
	if symbolCol < 0 {
		return fmt.Errorf("symbols csv missing tradingsymbol column")
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read symbols csv: %w", err)
		}
		symbol := strings.TrimSpace(record[symbolCol])
		if symbol == "" {
			continue
		}
		if _, seen := r.symbols[symbol]; !seen {
			r.symbols[symbol] = struct{}{}
			r.symbolList = append(r.symbolList, symbol)
		}
		if nameCol >= 0 && nameCol < len(record) {
			name := strings.ToUpper(strings.TrimSpace(record[nameCol]))
			if name != "" {
				if _, seen := r.names[name]; !seen {
					r.names[name] = symbol
					r.nameList = append(r.nameList, name)
				}
			}
		}
	}
}

// Resolve maps each input name to a symbol, dropping names that resolve
// nowhere. Output preserves input order with duplicates removed.
func (r *TickerResolver) Resolve(ctx context.Context, names []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, name := range names {
		symbol, ok := r.resolveOne(ctx, name)
		if !ok {
			r.logger.Warn().Str("name", name).Msg("No ticker match")
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	return out
}

func (r *TickerResolver) resolveOne(ctx context.Context, name string) (string, bool) {
	query := strings.ToUpper(strings.TrimSpace(name))
	if query == "" {
		return "", false
	}
	if symbol, ok := manualTickerMap[query]; ok {
		return symbol, true
	}

	// Exact symbol hit short-circuits the fuzzy scan.
	if _, ok := r.symbols[query]; ok {
		return query, true
	}

	if best, score := closestMatch(query, r.nameList); score >= fuzzyMatchThreshold {
		return r.names[best], true
	}
	if best, score := closestMatch(query, r.symbolList); score >= fuzzyMatchThreshold {
		return best, true
	}

	if symbol, err := r.remoteSearch(ctx, query); err == nil && symbol != "" {
		return symbol, true
	}
	return "", false
}

// closestMatch returns the candidate with the highest similarity ratio
// (0-100) against the cleaned query.
func closestMatch(query string, candidates []string) (string, int) {
	cleaned := cleanCompanyName(query)
	best, bestScore := "", -1
	for _, candidate := range candidates {
		score := similarity(cleaned, cleanCompanyName(candidate))
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best, bestScore
}

// similarity is a normalized Levenshtein ratio scaled to 0-100.
func similarity(a, b string) int {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	if a == b {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(float64(longest-dist) / float64(longest) * 100)
}

// cleanCompanyName uppercases and strips corporate suffixes that only add
// edit distance.
func cleanCompanyName(name string) string {
	name = strings.ToUpper(name)
	name = noiseWords.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

type remoteSearchResponse struct {
	Quotes []struct {
		Symbol   string `json:"symbol"`
		Exchange string `json:"exchange"`
	} `json:"quotes"`
}

// remoteSearch queries the public symbol search, preferring BSE then NSE
// listings.
func (r *TickerResolver) remoteSearch(ctx context.Context, name string) (string, error) {
	params := url.Values{
		"q":                []string{cleanCompanyName(name)},
		"quotesCount":      []string{"5"},
		"newsCount":        []string{"0"},
		"enableFuzzyQuery": []string{"false"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("symbol search status %d", resp.StatusCode)
	}

	var parsed remoteSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}

	for _, exchange := range exchangePriority {
		for _, quote := range parsed.Quotes {
			if quote.Exchange != exchange {
				continue
			}
			switch quote.Symbol {
			case "^BSESN":
				return "SENSEX", nil
			case "^NSEI":
				return "NIFTY", nil
			}
			symbol, _, _ := strings.Cut(quote.Symbol, ".")
			return symbol, nil
		}
	}
	return "", nil
}
