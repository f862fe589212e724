package fetcher

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/common"
)

func TestIsAggregatorURL(t *testing.T) {
	assert.True(t, IsAggregatorURL("https://news.google.com/articles/CBMiabc123"))
	assert.True(t, IsAggregatorURL("https://NEWS.GOOGLE.COM/read/xyz"))
	assert.False(t, IsAggregatorURL("https://www.moneycontrol.com/news/a"))
	assert.False(t, IsAggregatorURL("not a url"))
}

func aggregatorURLFor(target string) string {
	// Redirect ids wrap the target URL in a binary envelope; a one-byte
	// prefix and suffix are enough to exercise the scan.
	payload := append([]byte{0x08, 0x13}, []byte(target)...)
	payload = append(payload, 0xd2, 0x01)
	return "https://news.google.com/articles/" + base64.RawURLEncoding.EncodeToString(payload)
}

func TestDecodeAggregatorURL(t *testing.T) {
	target := "https://www.livemint.com/markets/reliance-q2-results"
	decoded := decodeAggregatorURL(aggregatorURLFor(target))
	assert.Equal(t, target, decoded)
}

func TestDecodeAggregatorURL_ReadPath(t *testing.T) {
	target := "https://example.com/story"
	raw := "https://news.google.com/read/" + base64.RawURLEncoding.EncodeToString(append([]byte{0x01}, []byte(target)...))
	assert.Equal(t, target, decodeAggregatorURL(raw))
}

func TestDecodeAggregatorURL_Unresolvable(t *testing.T) {
	assert.Equal(t, "", decodeAggregatorURL("https://news.google.com/articles/!!!not-base64!!!"))
	assert.Equal(t, "", decodeAggregatorURL("https://news.google.com/home"))
	// Valid base64 with no embedded URL
	id := base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, "", decodeAggregatorURL("https://news.google.com/articles/"+id))
}

func TestDecoderPool(t *testing.T) {
	d := newDecoder(2, common.GetLogger())
	defer d.Close()

	target := "https://example.com/pool-story"
	decoded := d.Decode(context.Background(), aggregatorURLFor(target))
	require.Equal(t, target, decoded)
}
