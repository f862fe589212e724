package fetcher

import (
	"context"
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
)

// Aggregator hosts that serve opaque redirect URLs.
var aggregatorHosts = map[string]bool{
	"news.google.com": true,
}

var embeddedURLPattern = regexp.MustCompile(`https?://[\x20-\x7E]+?(?:[^\x20-\x7E]|$)`)

// IsAggregatorURL reports whether the URL needs decoding before fetch.
func IsAggregatorURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return aggregatorHosts[strings.ToLower(u.Hostname())]
}

// decoder resolves aggregator redirect URLs to canonical article URLs
// through a small worker pool so decode bursts don't serialize.
type decoder struct {
	requests chan decodeRequest
	logger   arbor.ILogger
}

type decodeRequest struct {
	rawURL string
	result chan string
}

func newDecoder(workers int, logger arbor.ILogger) *decoder {
	if workers <= 0 {
		workers = 5
	}
	d := &decoder{
		requests: make(chan decodeRequest),
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *decoder) worker() {
	for req := range d.requests {
		req.result <- decodeAggregatorURL(req.rawURL)
	}
}

// Decode returns the canonical URL, or "" when the redirect cannot be
// resolved in-process (the browser tier clicks through instead).
func (d *decoder) Decode(ctx context.Context, rawURL string) string {
	req := decodeRequest{rawURL: rawURL, result: make(chan string, 1)}
	select {
	case d.requests <- req:
	case <-ctx.Done():
		return ""
	}
	select {
	case decoded := <-req.result:
		return decoded
	case <-ctx.Done():
		return ""
	}
}

func (d *decoder) Close() {
	close(d.requests)
}

// decodeAggregatorURL recovers the article URL embedded in an aggregator
// redirect id. The id is base64 (URL alphabet) wrapping a binary envelope
// that contains the target URL as a length-prefixed string; scanning the
// decoded bytes for an http(s) run is enough to pull it out.
func decodeAggregatorURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	var id string
	for i, seg := range segments {
		if (seg == "articles" || seg == "read") && i+1 < len(segments) {
			id = segments[i+1]
			break
		}
	}
	if id == "" {
		return ""
	}

	decoded, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(id)
		if err != nil {
			return ""
		}
	}

	match := embeddedURLPattern.Find(decoded)
	if match == nil {
		return ""
	}

	candidate := strings.TrimRightFunc(string(match), func(r rune) bool {
		return r < 0x20 || r > 0x7E
	})
	if parsed, err := url.Parse(candidate); err != nil || parsed.Host == "" {
		return ""
	}
	return candidate
}
