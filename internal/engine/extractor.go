package engine

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
)

// ExtractionResult carries the surviving ads plus everything product
// metrics and regression tests need to explain what was dropped.
type ExtractionResult struct {
	Ads      []model.ScrapedAd
	RawCount int
	Skipped  map[string]int
}

// ExtractAds normalizes and filters the raw elements the driver pulled
// from the page. One malformed card never aborts the rest: per-element
// panics are recovered and the element is dropped silently.
func ExtractAds(elements []model.RawElement, cfg *sitecfg.SiteConfig,
	monitor *model.MonitorWithFilters) *ExtractionResult {
	result := &ExtractionResult{
		RawCount: len(elements),
		Skipped:  make(map[string]int),
	}

	for i := range elements {
		ad, skipReason := extractOne(&elements[i], cfg, monitor)
		if skipReason != "" {
			result.Skipped[skipReason]++
			continue
		}
		if ad != nil {
			result.Ads = append(result.Ads, *ad)
		}
	}

	return result
}

func extractOne(el *model.RawElement, cfg *sitecfg.SiteConfig,
	monitor *model.MonitorWithFilters) (ad *model.ScrapedAd, skipReason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("element extraction panic, element dropped.", slog.Any("panic", r))
			ad, skipReason = nil, ""
		}
	}()

	rawURL := pickURL(el)
	url := cfg.Adapter.NormalizeURL(rawURL)
	if url == "" {
		return nil, model.SkipNoURL
	}
	externalID := cfg.Adapter.ExtractExternalID(url)
	if externalID == "" {
		return nil, model.SkipNoExternalID
	}
	title := pickTitle(el)
	if title == "" {
		return nil, model.SkipNoTitle
	}

	price := cfg.Adapter.ParsePrice(el.PriceText)
	// Price 0 means "unknown", not "cheap": it bypasses both bounds.
	if monitor.PriceMin != nil && price > 0 && price < *monitor.PriceMin {
		return nil, model.SkipPriceBelowMin
	}
	if monitor.PriceMax != nil && price > 0 && price > *monitor.PriceMax {
		return nil, model.SkipPriceAboveMax
	}

	if ok, reason := MatchLocation(el.Location, monitor); !ok {
		return nil, reason
	}

	return &model.ScrapedAd{
		ExternalID: externalID,
		Title:      title,
		Price:      price,
		URL:        url,
		ImageURL:   el.ImageURL,
		Location:   strings.TrimSpace(el.Location),
	}, ""
}

// Two-path URL logic: some sites wrap the whole card in an anchor, others
// nest the anchor. A card that is itself an anchor uses its own href even
// when empty; falling back to a nested link there would pick up unrelated
// navigation.
func pickURL(el *model.RawElement) string {
	if el.IsAnchor {
		return el.Href
	}
	if el.LinkHref != "" {
		return el.LinkHref
	}
	return el.NestedHref
}

func pickTitle(el *model.RawElement) string {
	if t := strings.TrimSpace(el.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(el.HeadingText); t != "" {
		return t
	}
	// Link-as-card layouts expose no stable title node; take the first
	// direct span that plausibly reads as a title.
	if el.IsAnchor {
		for _, span := range el.SpanTexts {
			if t := strings.TrimSpace(span); plausibleTitle(t) {
				return t
			}
		}
	}
	return ""
}

func plausibleTitle(text string) bool {
	if n := utf8.RuneCountInString(text); n <= 3 || n >= 200 {
		return false
	}
	r := []rune(text)[0]
	if unicode.IsDigit(r) {
		return false
	}
	return !strings.ContainsAny(text, "$€£¥₹")
}
