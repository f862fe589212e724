package fetcher

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Body extraction selectors, most specific first.
var contentSelectors = []string{
	"article",
	".article-content",
	".post-content",
	".entry-content",
	"[itemprop=\"articleBody\"]",
	".story-content",
	"main",
}

// Elements stripped before text extraction.
var strippedElements = "script, style, nav, footer, header, aside, iframe, form"

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	allowedCharsRe    = regexp.MustCompile(`[^\w\s.,!?\-:$%]`)
)

// pageMetadata is what we can learn about an article from its markup.
type pageMetadata struct {
	Title         string
	PublisherName string
	Author        string
	PublishedDate time.Time
	PublisherIcon string
}

// extractMetadata pulls publisher details via OpenGraph, article meta tags,
// and JSON-LD, with hostname and /favicon.ico fallbacks.
func extractMetadata(doc *goquery.Document, pageURL string) pageMetadata {
	meta := pageMetadata{}

	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && v != "" {
		meta.Title = strings.TrimSpace(v)
	} else {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if v, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && v != "" {
		meta.PublisherName = strings.TrimSpace(v)
	} else if u, err := url.Parse(pageURL); err == nil {
		meta.PublisherName = strings.TrimPrefix(u.Hostname(), "www.")
	}

	if v, ok := doc.Find(`meta[property="article:author"]`).Attr("content"); ok && v != "" {
		meta.Author = strings.TrimSpace(v)
	} else if v, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok && v != "" {
		meta.Author = strings.TrimSpace(v)
	}

	if v, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if ts, err := parseArticleTime(v); err == nil {
			meta.PublishedDate = ts
		}
	}
	if meta.PublishedDate.IsZero() {
		meta.PublishedDate = publishedFromJSONLD(doc)
	}

	meta.PublisherIcon = extractFavicon(doc, pageURL)

	return meta
}

// publishedFromJSONLD scans ld+json blocks for a datePublished field.
func publishedFromJSONLD(doc *goquery.Document) time.Time {
	var published time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if v, ok := payload["datePublished"].(string); ok {
			if ts, err := parseArticleTime(v); err == nil {
				published = ts
				return false
			}
		}
		return true
	})
	return published
}

func parseArticleTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339, Value: v}
}

var faviconSelectors = []string{
	`link[rel="icon"]`,
	`link[rel="shortcut icon"]`,
	`link[rel="apple-touch-icon"]`,
}

// extractFavicon resolves the site icon, defaulting to /favicon.ico.
func extractFavicon(doc *goquery.Document, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	for _, sel := range faviconSelectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && href != "" {
			if ref, err := url.Parse(href); err == nil {
				return base.ResolveReference(ref).String()
			}
		}
	}
	return base.Scheme + "://" + base.Host + "/favicon.ico"
}

// extractContent walks the selector cascade and returns cleaned body text,
// clamped to maxLen. Falls back to full body text.
func extractContent(doc *goquery.Document, maxLen int) string {
	working := doc.Clone()
	working.Find(strippedElements).Remove()

	for _, sel := range contentSelectors {
		node := working.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := cleanContent(node.Text(), maxLen); len(text) > 0 {
			return text
		}
	}

	return cleanContent(working.Find("body").Text(), maxLen)
}

// cleanContent normalizes whitespace, strips URLs, drops characters outside
// the retained punctuation set, and clamps length.
func cleanContent(text string, maxLen int) string {
	text = urlPattern.ReplaceAllString(text, " ")
	text = allowedCharsRe.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if maxLen > 0 && len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}
