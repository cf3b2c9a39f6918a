package engine

import (
	"context"
	"time"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
)

// PageDriver is the port to the live page. Implementations (headless
// browser, static fetch) only read the DOM; every heuristic and filter
// lives in this package so it stays testable without a browser.
type PageDriver interface {
	// WaitForSelector blocks until the selector has at least one match or
	// the timeout elapses, and returns the match count (0 on timeout).
	// An error is returned only for cancellation or driver failure.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (int, error)
	// Count returns the current match count without waiting.
	Count(ctx context.Context, selector string) (int, error)
	// ExtractElements evaluates the plan against every container element
	// and returns one raw field dictionary per element.
	ExtractElements(ctx context.Context, plan ExtractionPlan) ([]model.RawElement, error)
	// CollectSignals probes the page for the anti-bot, login, no-results
	// and result markers configured for the site.
	CollectSignals(ctx context.Context, cfg *sitecfg.SiteConfig) (model.PageSignals, error)
	// CurrentURL returns the page URL after redirects.
	CurrentURL(ctx context.Context) (string, error)
}

// ExtractionPlan names the container and the already-resolved field
// selectors. Title/Price/Link may be empty when no candidate matched;
// Location and Image stay as chains, the driver takes the first usable one.
type ExtractionPlan struct {
	Container string
	Title     string
	Price     string
	Link      string
	Location  []string
	Image     []string
}
