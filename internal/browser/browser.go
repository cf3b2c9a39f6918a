package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adlens/marketplace-crawler/config"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Driver owns one browser process; every monitor run gets its own tab.
type Driver struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	cfg         *config.BrowserConfig
}

func NewDriver(ctx context.Context, cfg *config.BrowserConfig) *Driver {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Driver{allocCtx: allocCtx, cancelAlloc: cancel, cfg: cfg}
}

func (d *Driver) Close() {
	d.cancelAlloc()
}

// Cookie is one injected session cookie, decoded from the session record.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

// Page is one browser tab prepared for a single run. It implements
// engine.PageDriver.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	site   *sitecfg.SiteConfig
}

// NewPage opens a tab with the site's anti-detection profile applied.
func (d *Driver) NewPage(site *sitecfg.SiteConfig) (*Page, error) {
	ctx, cancel := chromedp.NewContext(d.allocCtx)

	tasks := chromedp.Tasks{network.Enable()}
	if blocked := blockedURLPatterns(site.AntiDetection); len(blocked) > 0 {
		tasks = append(tasks, network.SetBlockedURLs(blocked))
	}
	if site.AntiDetection.StealthLevel >= sitecfg.StealthMedium {
		tasks = append(tasks, maskAutomation())
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}

	return &Page{ctx: ctx, cancel: cancel, site: site}, nil
}

func (p *Page) Close() {
	p.cancel()
}

// Navigate loads the url with the session's cookies injected, waits for
// the configured lifecycle event and runs the site's scroll strategy so
// lazy-loaded cards materialize.
func (p *Page) Navigate(ctx context.Context, url string, cookies []Cookie) error {
	tCtx, cancelTCtx := context.WithTimeout(p.ctx, p.site.NavigationTimeout)
	defer cancelTCtx()
	stop := propagateCancel(ctx, cancelTCtx)
	defer stop()

	tasks := chromedp.Tasks{}
	if len(cookies) > 0 {
		tasks = append(tasks, setCookies(cookies, p.site.Domain))
	}
	tasks = append(tasks,
		enableLifeCycleEvents(),
		navigateAndWaitFor(url, "networkIdle"),
	)
	if err := chromedp.Run(tCtx, tasks); err != nil {
		return err
	}

	return p.scroll(tCtx)
}

func (p *Page) scroll(ctx context.Context) error {
	cfg := p.site.Scroll
	switch cfg.Strategy {
	case sitecfg.ScrollAdaptive:
		return p.scrollAdaptive(ctx, cfg.Delay)
	default:
		return p.scrollFixed(ctx, cfg.Steps, cfg.Delay)
	}
}

func (p *Page) scrollFixed(ctx context.Context, steps int, delay time.Duration) error {
	for i := 0; i < steps; i++ {
		err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight);`, nil),
			chromedp.Sleep(delay),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// scrollAdaptive keeps scrolling until the document height stops growing,
// bounded by maxAdaptiveScrolls so infinite feeds terminate.
const maxAdaptiveScrolls = 20

func (p *Page) scrollAdaptive(ctx context.Context, delay time.Duration) error {
	lastHeight := -1
	for i := 0; i < maxAdaptiveScrolls; i++ {
		var height int
		err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight;`, &height),
			chromedp.Sleep(delay),
		)
		if err != nil {
			return err
		}
		if height == lastHeight {
			return nil
		}
		lastHeight = height
	}
	slog.Debug("adaptive scroll hit the step ceiling.", slog.String("site", p.site.Site))

	return nil
}

func setCookies(cookies []Cookie, defaultDomain string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		for _, c := range cookies {
			domain := c.Domain
			if domain == "" {
				domain = "." + defaultDomain
			}
			path := c.Path
			if path == "" {
				path = "/"
			}
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(domain).
				WithPath(path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to set cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}
}

func blockedURLPatterns(cfg sitecfg.AntiDetectionConfig) []string {
	var patterns []string
	if cfg.BlockImages {
		patterns = append(patterns, "*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg")
	}
	if cfg.BlockMedia {
		patterns = append(patterns, "*.mp4", "*.webm", "*.mp3", "*.m3u8")
	}
	if cfg.BlockFonts {
		patterns = append(patterns, "*.woff", "*.woff2", "*.ttf", "*.otf")
	}
	if cfg.BlockStylesheets {
		patterns = append(patterns, "*.css")
	}
	return patterns
}

// maskAutomation hides the most common webdriver fingerprints before any
// site script runs.
func maskAutomation() chromedp.ActionFunc {
	const script = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});`
	return func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		err := page.Enable().Do(ctx)
		if err != nil {
			return err
		}
		err = page.SetLifecycleEventsEnabled(true).Do(ctx)
		if err != nil {
			return err
		}
		return nil
	}
}

func navigateAndWaitFor(url string, eventName string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		return waitFor(ctx, eventName)
	}
}

func waitFor(ctx context.Context, eventName string) error {
	ch := make(chan struct{})
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	chromedp.ListenTarget(cctx, lifecycleEventHandler(eventName, cancel, ch))
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lifecycleEventHandler signals ch when the named lifecycle event arrives.
// The browser may dispatch the same event again before the listener is
// unwired, so the close is one-shot.
func lifecycleEventHandler(eventName string, cancel context.CancelFunc, ch chan<- struct{}) func(ev interface{}) {
	var once sync.Once
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			if e.Name == eventName {
				once.Do(func() {
					cancel()
					close(ch)
				})
			}
		}
	}
}

// The run context and the tab context have different lifetimes; cancel the
// tab work when the run is cancelled.
func propagateCancel(runCtx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
