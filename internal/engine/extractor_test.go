package engine

import (
	"strings"
	"testing"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facebookSite(t *testing.T) *sitecfg.SiteConfig {
	t.Helper()
	adapter, err := sitecfg.NewRegexAdapter("www.facebook.com", `/marketplace/item/(\d+)`, nil)
	require.NoError(t, err)
	return &sitecfg.SiteConfig{
		Site:    "facebook",
		Domain:  "www.facebook.com",
		Adapter: adapter,
	}
}

func float64Ptr(v float64) *float64 { return &v }

func TestExtractAdsLinkAsCard(t *testing.T) {
	site := facebookSite(t)
	monitor := &model.MonitorWithFilters{ID: 1, Site: "facebook"}

	elements := []model.RawElement{
		{
			IsAnchor:  true,
			Href:      "/marketplace/item/123/?ref=search&tracking=abc",
			SpanTexts: []string{"R$ 5.000", "iPhone 15", "São Paulo, SP"},
			PriceText: "R$ 5.000",
			Location:  "São Paulo, SP",
			ImageURL:  "https://scontent.example/img.jpg",
		},
	}

	result := ExtractAds(elements, site, monitor)
	require.Len(t, result.Ads, 1)
	assert.Equal(t, 1, result.RawCount)
	assert.Empty(t, result.Skipped)

	ad := result.Ads[0]
	assert.Equal(t, "123", ad.ExternalID)
	assert.Equal(t, "iPhone 15", ad.Title)
	assert.Equal(t, float64(5000), ad.Price)
	assert.Equal(t, "https://www.facebook.com/marketplace/item/123/", ad.URL)
	assert.Equal(t, "https://scontent.example/img.jpg", ad.ImageURL)
	assert.Equal(t, "São Paulo, SP", ad.Location)
}

// An anchor card with an empty href is skipped via no_url and never falls
// back to a nested link. The rest of the batch is unaffected.
func TestExtractAdsAnchorEmptyHref(t *testing.T) {
	site := facebookSite(t)
	monitor := &model.MonitorWithFilters{}

	elements := []model.RawElement{
		{
			IsAnchor:   true,
			Href:       "",
			NestedHref: "/marketplace/item/777/",
			LinkHref:   "/marketplace/item/777/",
			SpanTexts:  []string{"Valid looking title"},
		},
		{
			IsAnchor:  true,
			Href:      "/marketplace/item/456/",
			SpanTexts: []string{"Couch in great shape"},
			PriceText: "$120",
		},
	}

	result := ExtractAds(elements, site, monitor)
	require.Len(t, result.Ads, 1)
	assert.Equal(t, 2, result.RawCount)
	assert.Equal(t, map[string]int{model.SkipNoURL: 1}, result.Skipped)
	assert.Equal(t, "456", result.Ads[0].ExternalID)
}

func TestExtractAdsNestedLinkFallback(t *testing.T) {
	site := facebookSite(t)
	monitor := &model.MonitorWithFilters{}

	elements := []model.RawElement{
		{
			IsAnchor:    false,
			LinkHref:    "/marketplace/item/10/",
			Title:       "Bike",
			HeadingText: "ignored",
		},
		{
			IsAnchor:   false,
			NestedHref: "/marketplace/item/11/",
			Title:      "Desk",
		},
	}

	result := ExtractAds(elements, site, monitor)
	require.Len(t, result.Ads, 2)
	assert.Equal(t, "10", result.Ads[0].ExternalID)
	assert.Equal(t, "11", result.Ads[1].ExternalID)
}

func TestExtractAdsSkipReasons(t *testing.T) {
	site := facebookSite(t)
	monitor := &model.MonitorWithFilters{
		PriceMin: float64Ptr(100),
		PriceMax: float64Ptr(1000),
		Country:  "BR",
	}

	elements := []model.RawElement{
		// No usable id in the URL.
		{IsAnchor: true, Href: "/groups/12345/", SpanTexts: []string{"Wrong section"}},
		// No title anywhere.
		{IsAnchor: true, Href: "/marketplace/item/1/", SpanTexts: []string{"R$ 50", "123"}},
		// Below the minimum.
		{IsAnchor: true, Href: "/marketplace/item/2/", SpanTexts: []string{"Cheap thing"}, PriceText: "R$ 50"},
		// Above the maximum.
		{IsAnchor: true, Href: "/marketplace/item/3/", SpanTexts: []string{"Pricey thing"}, PriceText: "R$ 5.000"},
		// Wrong country.
		{IsAnchor: true, Href: "/marketplace/item/4/", SpanTexts: []string{"US listing"}, PriceText: "R$ 500", Location: "New York, NY"},
		// Survivor.
		{IsAnchor: true, Href: "/marketplace/item/5/", SpanTexts: []string{"Good listing"}, PriceText: "R$ 500", Location: "Campinas, SP"},
	}

	result := ExtractAds(elements, site, monitor)
	require.Len(t, result.Ads, 1)
	assert.Equal(t, "5", result.Ads[0].ExternalID)
	assert.Equal(t, 6, result.RawCount)
	assert.Equal(t, map[string]int{
		model.SkipNoExternalID:            1,
		model.SkipNoTitle:                 1,
		model.SkipPriceBelowMin:           1,
		model.SkipPriceAboveMax:           1,
		model.SkipLocationCountryMismatch: 1,
	}, result.Skipped)
}

// Price 0 means the price could not be parsed. It must pass through both
// bounds instead of being treated as below the minimum.
func TestExtractAdsUnknownPriceBypassesFilters(t *testing.T) {
	site := facebookSite(t)
	monitor := &model.MonitorWithFilters{
		PriceMin: float64Ptr(100),
		PriceMax: float64Ptr(1000),
	}

	elements := []model.RawElement{
		{IsAnchor: true, Href: "/marketplace/item/9/", SpanTexts: []string{"No price shown"}, PriceText: "Free · negotiable"},
	}

	result := ExtractAds(elements, site, monitor)
	require.Len(t, result.Ads, 1)
	assert.Equal(t, float64(0), result.Ads[0].Price)
}

func TestPickTitleFallbackChain(t *testing.T) {
	assert.Equal(t, "Explicit", pickTitle(&model.RawElement{Title: " Explicit ", HeadingText: "Heading"}))
	assert.Equal(t, "Heading", pickTitle(&model.RawElement{HeadingText: "Heading"}))

	// Span scan applies to anchor cards only.
	anchor := &model.RawElement{IsAnchor: true, SpanTexts: []string{"R$ 5.000", "42", "ok", "iPhone 15 Pro"}}
	assert.Equal(t, "iPhone 15 Pro", pickTitle(anchor))

	nonAnchor := &model.RawElement{IsAnchor: false, SpanTexts: []string{"iPhone 15 Pro"}}
	assert.Equal(t, "", pickTitle(nonAnchor))
}

func TestPlausibleTitle(t *testing.T) {
	assert.True(t, plausibleTitle("Mountain bike"))
	assert.False(t, plausibleTitle("ok"), "too short")
	assert.False(t, plausibleTitle("$1,200"), "currency")
	assert.False(t, plausibleTitle("2 bedroom apartment"), "leading digit")

	// Length bounds count characters, not bytes.
	assert.False(t, plausibleTitle("Olá"), "three runes even if four bytes")
	assert.True(t, plausibleTitle("Sofá"))
	assert.False(t, plausibleTitle(strings.Repeat("ã", 200)), "two hundred runes")
}

// panickyAdapter blows up on one specific href to model a malformed card
// hitting a nil dereference deep in per-site code.
type panickyAdapter struct {
	inner    sitecfg.SiteAdapter
	poisoned string
}

func (a *panickyAdapter) NormalizeURL(raw string) string {
	if raw == a.poisoned {
		panic("malformed card")
	}
	return a.inner.NormalizeURL(raw)
}

func (a *panickyAdapter) ExtractExternalID(url string) string { return a.inner.ExtractExternalID(url) }
func (a *panickyAdapter) ParsePrice(text string) float64      { return a.inner.ParsePrice(text) }

// A panic while extracting one element drops that element silently; it
// never aborts the batch and never shows up as a skip reason.
func TestExtractAdsPanicDropsElementOnly(t *testing.T) {
	site := facebookSite(t)
	site.Adapter = &panickyAdapter{inner: site.Adapter, poisoned: "/marketplace/item/666/"}
	monitor := &model.MonitorWithFilters{}

	elements := []model.RawElement{
		{IsAnchor: true, Href: "/marketplace/item/666/", SpanTexts: []string{"Poisoned card"}},
		{IsAnchor: true, Href: "/marketplace/item/123/", SpanTexts: []string{"iPhone 15"}, PriceText: "R$ 5.000"},
	}

	result := ExtractAds(elements, site, monitor)
	require.Len(t, result.Ads, 1)
	assert.Equal(t, "123", result.Ads[0].ExternalID)
	assert.Equal(t, 2, result.RawCount)
	assert.Empty(t, result.Skipped)
}
