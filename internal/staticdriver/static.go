package staticdriver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/adlens/marketplace-crawler/config"
	"github.com/adlens/marketplace-crawler/internal/engine"
	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/gocolly/colly"
)

// Driver fetches a results page over plain HTTP for sites that serve
// content without authentication or client-side rendering. Much cheaper
// than a browser tab; the page it returns answers the same PageDriver
// interface off an in-memory DOM snapshot.
type Driver struct {
	transport *http.Transport
	cfg       *config.BrowserConfig
}

func NewDriver(transport *http.Transport, cfg *config.BrowserConfig) *Driver {
	return &Driver{transport: transport, cfg: cfg}
}

// Fetch downloads and parses the page. Network failures propagate to the
// orchestration layer; they are infra errors, not diagnosis outcomes.
func (d *Driver) Fetch(ctx context.Context, url string, site *sitecfg.SiteConfig) (*Page, error) {
	c := colly.NewCollector()
	c.WithTransport(d.transport)
	c.SetRequestTimeout(d.cfg.FetchTimeout)
	c.UserAgent = d.cfg.UserAgent

	var body []byte
	var finalURL string
	var fetchErr error
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
		finalURL = resp.Request.URL.String()
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	slog.Debug("page fetched statically.", slog.String("url", url), slog.Int("bytes", len(body)))

	return &Page{doc: doc, finalURL: finalURL, site: site}, nil
}

// Page is one parsed static page. It implements engine.PageDriver; waits
// return immediately because the snapshot never changes.
type Page struct {
	doc      *goquery.Document
	finalURL string
	site     *sitecfg.SiteConfig
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, _ time.Duration) (int, error) {
	return p.Count(ctx, selector)
}

func (p *Page) Count(ctx context.Context, selector string) (count int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	// goquery panics on selectors it cannot compile; a broken candidate
	// just counts as no match.
	defer func() {
		if r := recover(); r != nil {
			count = 0
		}
	}()
	return p.doc.Find(selector).Length(), nil
}

func (p *Page) CurrentURL(_ context.Context) (string, error) {
	return p.finalURL, nil
}

func (p *Page) CollectSignals(ctx context.Context, cfg *sitecfg.SiteConfig) (model.PageSignals, error) {
	var signals model.PageSignals
	if err := ctx.Err(); err != nil {
		return signals, err
	}
	bodyText := strings.ToLower(p.doc.Find("body").Text())

	signals.HasRecaptcha = p.exists(`iframe[src*="recaptcha"]`) || p.exists(".g-recaptcha")
	signals.HasHcaptcha = p.exists(`iframe[src*="hcaptcha"]`) || p.exists(".h-captcha")
	signals.HasCloudflare = p.exists("#challenge-form") || p.exists("#cf-challenge-running") ||
		strings.Contains(bodyText, "checking your browser")
	signals.HasDatadome = p.exists(`iframe[src*="captcha-delivery.com"]`) || p.exists(`[class*="datadome"]`)
	signals.HasLoginForm = p.exists(`form input[type="password"]`)
	signals.HasLoginText = containsAny(bodyText, cfg.LoginPatterns)
	signals.HasNoResultsText = containsAny(bodyText, cfg.NoResultsPatterns)
	signals.HasCheckpoint = containsAny(bodyText, cfg.CheckpointPatterns) ||
		strings.Contains(strings.ToLower(p.finalURL), "checkpoint")
	for _, selector := range cfg.Selectors.Container {
		n, _ := p.Count(ctx, selector)
		if n > 0 {
			signals.HasResultsMarker = true
			break
		}
	}
	signals.VisibleElemCount = p.doc.Find("body *").Length()

	return signals, nil
}

func (p *Page) ExtractElements(ctx context.Context, plan engine.ExtractionPlan) ([]model.RawElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var elements []model.RawElement
	p.doc.Find(plan.Container).Each(func(_ int, card *goquery.Selection) {
		el := model.RawElement{IsAnchor: card.Is("a")}
		if el.IsAnchor {
			el.Href = card.AttrOr("href", "")
		}
		if plan.Title != "" {
			el.Title = strings.TrimSpace(card.Find(plan.Title).First().Text())
		}
		el.HeadingText = strings.TrimSpace(card.Find("h2, h3").First().Text())
		card.ChildrenFiltered("span").Each(func(_ int, span *goquery.Selection) {
			if text := strings.TrimSpace(span.Text()); text != "" && len(el.SpanTexts) < 10 {
				el.SpanTexts = append(el.SpanTexts, text)
			}
		})
		if plan.Price != "" {
			el.PriceText = strings.TrimSpace(card.Find(plan.Price).First().Text())
		}
		if plan.Link != "" {
			el.LinkHref = card.Find(plan.Link).First().AttrOr("href", "")
		}
		el.NestedHref = card.Find("a[href]").First().AttrOr("href", "")
		for _, selector := range plan.Image {
			img := card.Find(selector).First()
			if img.Length() == 0 {
				continue
			}
			for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
				if v, ok := img.Attr(attr); ok && v != "" {
					el.ImageURL = v
					break
				}
			}
			if el.ImageURL != "" {
				break
			}
		}
		for _, selector := range plan.Location {
			if text := strings.TrimSpace(card.Find(selector).First().Text()); text != "" {
				el.Location = text
				break
			}
		}
		elements = append(elements, el)
	})

	return elements, nil
}

func (p *Page) exists(selector string) bool {
	n, _ := p.Count(context.Background(), selector)
	return n > 0
}

func containsAny(haystack string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(haystack, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
