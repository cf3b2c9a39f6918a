package model

// ScrapedAd is one normalized listing pulled from a results page.
// Deduplication by ExternalID happens downstream.
type ScrapedAd struct {
	ExternalID string  `json:"external_id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"` // 0 means unparseable or free
	URL        string  `json:"url"`
	ImageURL   string  `json:"image_url,omitempty"`
	Location   string  `json:"location,omitempty"`
}

// RawElement is the untyped field dictionary the page driver returns for a
// single ad-card element. The extractor owns all fallback and filtering
// logic; the driver only reads the DOM.
type RawElement struct {
	IsAnchor    bool     `json:"is_anchor"`
	Href        string   `json:"href,omitempty"`
	Title       string   `json:"title,omitempty"`
	HeadingText string   `json:"heading_text,omitempty"`
	SpanTexts   []string `json:"span_texts,omitempty"`
	PriceText   string   `json:"price_text,omitempty"`
	LinkHref    string   `json:"link_href,omitempty"`
	NestedHref  string   `json:"nested_href,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Location    string   `json:"location,omitempty"`
}

// MonitorWithFilters is a user's saved search. Read-only to the engine.
type MonitorWithFilters struct {
	ID          int64    `json:"id"`
	UserID      int64    `json:"user_id"`
	Site        string   `json:"site"`
	SearchURL   string   `json:"search_url"`
	PriceMin    *float64 `json:"price_min,omitempty"`
	PriceMax    *float64 `json:"price_max,omitempty"`
	Country     string   `json:"country,omitempty"` // ISO-3166-1 alpha-2, empty or WORLDWIDE means no filter
	StateRegion string   `json:"state_region,omitempty"`
	City        string   `json:"city,omitempty"`
}

// Skip reasons counted by the extractor. Stable names: they feed both
// product metrics and regression tests.
const (
	SkipNoURL                   = "no_url"
	SkipNoExternalID            = "no_external_id"
	SkipNoTitle                 = "no_title"
	SkipPriceBelowMin           = "price_below_min"
	SkipPriceAboveMax           = "price_above_max"
	SkipLocationCountryMismatch = "location_country_mismatch"
	SkipLocationStateMismatch   = "location_state_mismatch"
	SkipLocationCityMismatch    = "location_city_mismatch"
)
