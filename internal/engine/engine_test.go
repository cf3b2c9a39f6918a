package engine

import (
	"context"
	"testing"
	"time"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	sessionIDs []string
	pageTypes  []model.PageType
}

func (r *fakeReporter) ReportResult(_ context.Context, sessionID string, pageType model.PageType) error {
	r.sessionIDs = append(r.sessionIDs, sessionID)
	r.pageTypes = append(r.pageTypes, pageType)
	return nil
}

func runSite(t *testing.T) *sitecfg.SiteConfig {
	t.Helper()
	adapter, err := sitecfg.NewRegexAdapter("www.facebook.com", `/marketplace/item/(\d+)`, nil)
	require.NoError(t, err)
	return &sitecfg.SiteConfig{
		Site:   "facebook",
		Domain: "www.facebook.com",
		Selectors: sitecfg.SelectorConfig{
			Container: []string{"a[href*='/marketplace/item/']"},
			Title:     []string{"span[dir='auto']"},
			Price:     []string{"span.price"},
			Link:      []string{"a[href]"},
			Location:  []string{"span.location"},
			Image:     []string{"img"},
		},
		RateLimit: sitecfg.RateLimitConfig{TokensPerMin: 60},
		Timeouts:  []time.Duration{20 * time.Millisecond},
		Adapter:   adapter,
	}
}

func TestEngineRunContentPage(t *testing.T) {
	site := runSite(t)
	monitor := &model.MonitorWithFilters{ID: 7, UserID: 3, Site: "facebook",
		SearchURL: "https://www.facebook.com/marketplace/sp/search?query=iphone"}
	sess := &model.SessionPoolEntry{SessionID: "sess-1", HealthScore: 90}

	driver := &fakeDriver{
		waits:   map[string][]int{"a[href*='/marketplace/item/']": {3}},
		counts:  map[string]int{"span[dir='auto']": 5, "span.price": 3, "a[href]": 3},
		signals: model.PageSignals{HasResultsMarker: true, VisibleElemCount: 300},
		elements: []model.RawElement{
			{IsAnchor: true, Href: "/marketplace/item/123/", SpanTexts: []string{"iPhone 15"}, PriceText: "R$ 5.000"},
			{IsAnchor: true, Href: ""},
		},
		url: "https://www.facebook.com/marketplace/sp/search?query=iphone",
	}
	reporter := &fakeReporter{}
	navigated := false

	eng := NewEngine(NewSiteRateLimiter(), reporter, "1.0.0")
	result, err := eng.Run(context.Background(), RunParams{
		Driver: driver,
		Navigate: func(_ context.Context) error {
			navigated = true
			return nil
		},
		Site:    site,
		Monitor: monitor,
		Session: sess,
	})
	require.NoError(t, err)
	require.True(t, navigated)

	assert.Equal(t, model.Content, result.PageType)
	require.Len(t, result.Ads, 1)
	assert.Equal(t, "123", result.Ads[0].ExternalID)
	assert.Equal(t, float64(5000), result.Ads[0].Price)
	assert.Equal(t, "https://www.facebook.com/marketplace/item/123/", result.Ads[0].URL)

	record := result.Record
	require.NotNil(t, record)
	assert.NotEmpty(t, record.RunID)
	assert.Equal(t, int64(7), record.MonitorID)
	assert.Equal(t, "CONTENT", record.PageType)
	assert.Equal(t, "a[href*='/marketplace/item/']", record.SelectorUsed)
	assert.Equal(t, 1, record.SelectorAttempts)
	assert.True(t, record.Authenticated)
	assert.Equal(t, "sess-1", record.SessionID)
	assert.Equal(t, 2, record.RawAdCount)
	assert.Equal(t, 1, record.ValidAdCount)
	assert.Equal(t, map[string]int{model.SkipNoURL: 1}, record.SkippedAds)
	assert.Equal(t, "1.0.0", record.EngineVersion)

	// The extraction plan carries the resolved field selectors.
	assert.Equal(t, "a[href*='/marketplace/item/']", driver.plan.Container)
	assert.Equal(t, "span[dir='auto']", driver.plan.Title)

	assert.Equal(t, []string{"sess-1"}, reporter.sessionIDs)
	assert.Equal(t, []model.PageType{model.Content}, reporter.pageTypes)
}

func TestEngineRunBlockedPageSkipsExtraction(t *testing.T) {
	site := runSite(t)
	monitor := &model.MonitorWithFilters{ID: 7, Site: "facebook", SearchURL: "https://example.com"}
	sess := &model.SessionPoolEntry{SessionID: "sess-2"}

	driver := &fakeDriver{
		signals: model.PageSignals{HasCloudflare: true},
	}
	reporter := &fakeReporter{}

	eng := NewEngine(NewSiteRateLimiter(), reporter, "1.0.0")
	result, err := eng.Run(context.Background(), RunParams{
		Driver:   driver,
		Navigate: func(_ context.Context) error { return nil },
		Site:     site,
		Monitor:  monitor,
		Session:  sess,
	})
	require.NoError(t, err)

	assert.Equal(t, model.Blocked, result.PageType)
	assert.Empty(t, result.Ads)
	assert.Equal(t, 0, result.Record.RawAdCount)
	assert.Equal(t, "BLOCKED", result.Record.PageType)
	assert.Equal(t, []model.PageType{model.Blocked}, reporter.pageTypes)
}

func TestEngineRunAnonymousSiteReportsNothing(t *testing.T) {
	site := runSite(t)
	monitor := &model.MonitorWithFilters{ID: 9, Site: "facebook", SearchURL: "https://example.com"}

	driver := &fakeDriver{signals: model.PageSignals{HasNoResultsText: true}}
	reporter := &fakeReporter{}

	eng := NewEngine(NewSiteRateLimiter(), reporter, "1.0.0")
	result, err := eng.Run(context.Background(), RunParams{
		Driver:   driver,
		Navigate: func(_ context.Context) error { return nil },
		Site:     site,
		Monitor:  monitor,
	})
	require.NoError(t, err)

	assert.Equal(t, model.NoResults, result.PageType)
	assert.False(t, result.Record.Authenticated)
	assert.Empty(t, result.Record.SessionID)
	assert.Empty(t, reporter.sessionIDs)
}

// A run cancelled mid-flight commits nothing: no health report, no record.
func TestEngineRunCancelledMidFlight(t *testing.T) {
	site := runSite(t)
	monitor := &model.MonitorWithFilters{ID: 7, Site: "facebook", SearchURL: "https://example.com"}
	sess := &model.SessionPoolEntry{SessionID: "sess-3"}

	driver := &fakeDriver{signals: model.PageSignals{HasResultsMarker: true}}
	reporter := &fakeReporter{}

	ctx, cancel := context.WithCancel(context.Background())
	eng := NewEngine(NewSiteRateLimiter(), reporter, "1.0.0")
	result, err := eng.Run(ctx, RunParams{
		Driver: driver,
		Navigate: func(_ context.Context) error {
			cancel()
			return nil
		},
		Site:    site,
		Monitor: monitor,
		Session: sess,
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Empty(t, reporter.pageTypes)
}
