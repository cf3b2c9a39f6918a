package sitecfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text     string
		expected float64
	}{
		{"R$ 5.000", 5000},
		{"R$ 1.234.567", 1234567},
		{"R$ 1.234,56", 1234.56},
		{"1.234,56", 1234.56},
		{"$1,234.56", 1234.56},
		{"$1,200", 1200},
		{"$25", 25},
		{"5,90", 5.9},
		{"R$ 150", 150},
		{"Preço: R$ 300 à vista", 300},
		{"12.5", 12.5},
		{"Free", 0},
		{"Grátis", 0},
		{"", 0},
		{"...", 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParsePrice(tt.text))
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	adapter, err := NewRegexAdapter("www.facebook.com", `/marketplace/item/(\d+)`, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"relative path", "/marketplace/item/123/", "https://www.facebook.com/marketplace/item/123/"},
		{"tracking params stripped", "/marketplace/item/123/?ref=search&tracking=xyz",
			"https://www.facebook.com/marketplace/item/123/"},
		{"fragment dropped", "/marketplace/item/123/#photos", "https://www.facebook.com/marketplace/item/123/"},
		{"absolute url kept", "https://www.facebook.com/marketplace/item/456/",
			"https://www.facebook.com/marketplace/item/456/"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"bare root", "/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.NormalizeURL(tt.raw))
		})
	}
}

func TestNormalizeURLKeepsConfiguredParams(t *testing.T) {
	adapter, err := NewRegexAdapter("craigslist.org", `/(\d+)\.html`, []string{"lang"})
	require.NoError(t, err)

	got := adapter.NormalizeURL("/apa/d/listing/7700000001.html?lang=pt&utm_source=feed")
	assert.Equal(t, "https://craigslist.org/apa/d/listing/7700000001.html?lang=pt", got)
}

func TestExtractExternalID(t *testing.T) {
	adapter, err := NewRegexAdapter("www.facebook.com", `/marketplace/item/(\d+)`, nil)
	require.NoError(t, err)

	assert.Equal(t, "123", adapter.ExtractExternalID("https://www.facebook.com/marketplace/item/123/"))
	assert.Equal(t, "", adapter.ExtractExternalID("https://www.facebook.com/groups/456/"))
	assert.Equal(t, "", adapter.ExtractExternalID(""))
}

func TestNewRegexAdapterBadPattern(t *testing.T) {
	_, err := NewRegexAdapter("example.com", `(unclosed`, nil)
	assert.Error(t, err)
}
