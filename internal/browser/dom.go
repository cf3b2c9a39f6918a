package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adlens/marketplace-crawler/internal/engine"
	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/chromedp/chromedp"
)

const selectorPollInterval = 100 * time.Millisecond

// WaitForSelector polls the match count until the selector appears or the
// timeout elapses. Timeout is not an error: the caller escalates.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		count, err := p.Count(ctx, selector)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			return count, nil
		}
		if time.Now().After(deadline) {
			return 0, nil
		}
		select {
		case <-time.After(selectorPollInterval):
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-p.ctx.Done():
			return 0, p.ctx.Err()
		}
	}
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return 0, err
	}
	var count int
	script := fmt.Sprintf(`(() => { try { return document.querySelectorAll(%s).length; } catch (e) { return 0; } })()`, sel)
	if err := p.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// CollectSignals evaluates one probe expression that gathers every
// diagnosis signal in a single round trip to the page.
func (p *Page) CollectSignals(ctx context.Context, cfg *sitecfg.SiteConfig) (model.PageSignals, error) {
	var signals model.PageSignals
	script, err := buildSignalScript(cfg)
	if err != nil {
		return signals, err
	}
	if err := p.run(ctx, chromedp.Evaluate(script, &signals)); err != nil {
		return signals, err
	}
	return signals, nil
}

func buildSignalScript(cfg *sitecfg.SiteConfig) (string, error) {
	containers, err := json.Marshal(cfg.Selectors.Container)
	if err != nil {
		return "", err
	}
	noResults, err := json.Marshal(cfg.NoResultsPatterns)
	if err != nil {
		return "", err
	}
	login, err := json.Marshal(cfg.LoginPatterns)
	if err != nil {
		return "", err
	}
	checkpoint, err := json.Marshal(cfg.CheckpointPatterns)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`(() => {
	const bodyText = document.body ? document.body.innerText.toLowerCase() : '';
	const any = (sels) => sels.some(s => { try { return document.querySelector(s) !== null; } catch (e) { return false; } });
	const anyText = (pats) => pats.some(pat => pat && bodyText.includes(pat.toLowerCase()));
	const resultCount = %s.reduce((n, s) => { try { return n + document.querySelectorAll(s).length; } catch (e) { return n; } }, 0);
	return {
		has_recaptcha: any(['iframe[src*="recaptcha"]', '.g-recaptcha', '#recaptcha']),
		has_hcaptcha: any(['iframe[src*="hcaptcha"]', '.h-captcha']),
		has_cloudflare: any(['#challenge-form', '#cf-challenge-running', '#turnstile-wrapper']) || bodyText.includes('checking your browser'),
		has_datadome: any(['iframe[src*="captcha-delivery.com"]', '[class*="datadome"]']),
		has_login_form: any(['form input[type="password"]']),
		has_login_text: anyText(%s),
		has_no_results_text: anyText(%s),
		has_results_marker: resultCount > 0,
		has_checkpoint: anyText(%s) || window.location.href.toLowerCase().includes('checkpoint'),
		visible_elem_count: document.querySelectorAll('body *').length
	};
})()`, containers, login, noResults, checkpoint), nil
}

// ExtractElements maps every container element to a raw field dictionary
// in one in-page evaluation. All heuristics on the returned data belong to
// the extractor, not here.
func (p *Page) ExtractElements(ctx context.Context, plan engine.ExtractionPlan) ([]model.RawElement, error) {
	script, err := buildExtractionScript(plan)
	if err != nil {
		return nil, err
	}
	var elements []model.RawElement
	if err := p.run(ctx, chromedp.Evaluate(script, &elements)); err != nil {
		return nil, err
	}
	return elements, nil
}

func buildExtractionScript(plan engine.ExtractionPlan) (string, error) {
	container, err := json.Marshal(plan.Container)
	if err != nil {
		return "", err
	}
	title, err := json.Marshal(plan.Title)
	if err != nil {
		return "", err
	}
	price, err := json.Marshal(plan.Price)
	if err != nil {
		return "", err
	}
	link, err := json.Marshal(plan.Link)
	if err != nil {
		return "", err
	}
	locations, err := json.Marshal(plan.Location)
	if err != nil {
		return "", err
	}
	images, err := json.Marshal(plan.Image)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`(() => {
	const textOf = (el, sel) => {
		if (!sel) return '';
		let n;
		try { n = el.querySelector(sel); } catch (e) { return ''; }
		return n ? n.innerText.trim() : '';
	};
	return Array.from(document.querySelectorAll(%s)).map(card => {
		const isAnchor = card.tagName === 'A';
		let linkNode = null;
		const linkSel = %s;
		if (linkSel) { try { linkNode = card.querySelector(linkSel); } catch (e) {} }
		const nested = card.querySelector('a[href]');
		const h = card.querySelector('h2, h3');
		const spans = Array.from(card.querySelectorAll(':scope > span, :scope > div > span'))
			.map(s => s.innerText.trim()).filter(t => t.length > 0).slice(0, 10);
		let image = '';
		for (const sel of %s) {
			let n;
			try { n = card.querySelector(sel); } catch (e) { continue; }
			if (!n) continue;
			image = n.getAttribute('src') || n.getAttribute('data-src') || n.getAttribute('data-lazy-src') || '';
			if (image) break;
		}
		let location = '';
		for (const sel of %s) {
			let n;
			try { n = card.querySelector(sel); } catch (e) { continue; }
			if (n && n.innerText.trim()) { location = n.innerText.trim(); break; }
		}
		return {
			is_anchor: isAnchor,
			href: isAnchor ? (card.getAttribute('href') || '') : '',
			title: textOf(card, %s),
			heading_text: h ? h.innerText.trim() : '',
			span_texts: spans,
			price_text: textOf(card, %s),
			link_href: linkNode ? (linkNode.getAttribute('href') || '') : '',
			nested_href: nested ? (nested.getAttribute('href') || '') : '',
			image_url: image,
			location: location
		};
	});
})()`, container, link, images, locations, title, price), nil
}

// run executes tab actions bounded by both the run context and the tab.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := propagateCancel(ctx, p.cancel)
	defer stop()
	err := chromedp.Run(p.ctx, actions...)
	if err != nil && errors.Is(p.ctx.Err(), context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
