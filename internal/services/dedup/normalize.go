package dedup

import (
	"net/url"
	"strings"
	"unicode"
)

// Tracking parameters stripped during URL normalization.
var trackingParams = map[string]bool{
	"ref":     true,
	"source":  true,
	"fbclid":  true,
	"gclid":   true,
	"cid":     true,
	"soc_src": true,
	"src":     true,
	"ig_cid":  true,
}

func isTrackingParam(name string) bool {
	if strings.HasPrefix(name, "utm_") {
		return true
	}
	return trackingParams[strings.ToLower(name)]
}

// NormalizeURL canonicalizes a URL for dedup hashing: https scheme default,
// lowercase host, fragment dropped, tracking params removed, trailing slash
// trimmed. Unparseable input falls back to a trimmed lowercase string.
func NormalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(trimmed, "/"))
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimRight(u.Path, "/")

	var query string
	if u.RawQuery != "" {
		kept := url.Values{}
		for name, values := range u.Query() {
			if isTrackingParam(name) {
				continue
			}
			for _, v := range values {
				kept.Add(name, v)
			}
		}
		query = kept.Encode()
	}

	normalized := scheme + "://" + host + path
	if query != "" {
		normalized += "?" + query
	}
	return normalized
}

// NormalizeTitle lowercases, strips punctuation, and collapses whitespace.
// Returns "" for titles too short to match reliably (<10 chars after
// normalization).
func NormalizeTitle(title string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// punctuation dropped, acts as a word break
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	normalized := strings.TrimSpace(b.String())
	if len(normalized) < 10 {
		return ""
	}
	return normalized
}
