package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/google/uuid"
)

// ResultReporter receives the observed PageType after every completed run
// so session health can be adjusted. Implemented by the session pool.
type ResultReporter interface {
	ReportResult(ctx context.Context, sessionID string, pageType model.PageType) error
}

// NavigateFunc loads the monitor's search URL in the driver's page using
// whatever session the caller selected. Navigation and cookie injection
// stay outside the engine.
type NavigateFunc func(ctx context.Context) error

type Engine struct {
	limiter  *SiteRateLimiter
	reporter ResultReporter
	version  string
}

func NewEngine(limiter *SiteRateLimiter, reporter ResultReporter, version string) *Engine {
	return &Engine{
		limiter:  limiter,
		reporter: reporter,
		version:  version,
	}
}

type RunParams struct {
	Driver   PageDriver
	Navigate NavigateFunc
	Site     *sitecfg.SiteConfig
	Monitor  *model.MonitorWithFilters
	Session  *model.SessionPoolEntry // nil for anonymous sites
}

type RunResult struct {
	PageType model.PageType
	Ads      []model.ScrapedAd
	Record   *model.DiagnosisRecord
}

// Run executes one monitor run: rate-limit permit, navigation, container
// resolution, diagnosis, extraction (CONTENT only), health report,
// diagnosis record. Diagnosis outcomes are results, never errors; an error
// return means cancellation or a driver failure the orchestration layer
// must classify. On cancellation nothing is reported and no record is
// produced; a run either completes and reports or leaves no trace.
func (e *Engine) Run(ctx context.Context, p RunParams) (*RunResult, error) {
	if err := e.limiter.Acquire(ctx, p.Site.Site, p.Site.RateLimit); err != nil {
		return nil, err
	}
	if err := p.Navigate(ctx); err != nil {
		return nil, err
	}
	if p.Site.RenderDelay > 0 {
		select {
		case <-time.After(p.Site.RenderDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	resolveStart := time.Now()
	resolved, err := WaitForContainer(ctx, p.Driver, p.Site.Selectors.Container, p.Site.Timeouts)
	if err != nil {
		return nil, err
	}
	timeToResolve := time.Since(resolveStart)

	signals, err := p.Driver.CollectSignals(ctx, p.Site)
	if err != nil {
		return nil, err
	}
	pageType := DiagnosePage(signals)

	var extraction *ExtractionResult
	var timeToExtract time.Duration
	if pageType == model.Content && resolved.Found() {
		extractStart := time.Now()
		extraction, err = e.extract(ctx, p, resolved.Selector)
		if err != nil {
			return nil, err
		}
		timeToExtract = time.Since(extractStart)
	}

	// Cancelled mid-flight: commit nothing, report nothing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Session != nil {
		if err := e.reporter.ReportResult(ctx, p.Session.SessionID, pageType); err != nil {
			slog.Error("failed to report run result to session pool.",
				slog.String("session_id", p.Session.SessionID), slog.String("err", err.Error()))
		}
	}

	finalURL, err := p.Driver.CurrentURL(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("failed to read final url.", slog.String("err", err.Error()))
	}

	record := &model.DiagnosisRecord{
		RunID:            uuid.New().String(),
		MonitorID:        p.Monitor.ID,
		Site:             p.Site.Site,
		URL:              p.Monitor.SearchURL,
		FinalURL:         finalURL,
		PageType:         pageType.String(),
		Signals:          signals,
		SelectorUsed:     resolved.Selector,
		SelectorAttempts: resolved.Attempts,
		Authenticated:    p.Session != nil,
		StealthLevel:     p.Site.AntiDetection.StealthLevel.String(),
		TimeToResolve:    timeToResolve.Milliseconds(),
		TimeToExtract:    timeToExtract.Milliseconds(),
		Timestamp:        time.Now().UTC(),
		EngineVersion:    e.version,
	}
	if p.Session != nil {
		record.SessionID = p.Session.SessionID
	}

	result := &RunResult{PageType: pageType, Record: record}
	if extraction != nil {
		result.Ads = extraction.Ads
		record.RawAdCount = extraction.RawCount
		record.ValidAdCount = len(extraction.Ads)
		record.SkippedAds = extraction.Skipped
	}

	return result, nil
}

func (e *Engine) extract(ctx context.Context, p RunParams, container string) (*ExtractionResult, error) {
	titleSel, err := FindSelector(ctx, p.Driver, p.Site.Selectors.Title)
	if err != nil {
		return nil, err
	}
	priceSel, err := FindSelector(ctx, p.Driver, p.Site.Selectors.Price)
	if err != nil {
		return nil, err
	}
	linkSel, err := FindSelector(ctx, p.Driver, p.Site.Selectors.Link)
	if err != nil {
		return nil, err
	}

	elements, err := p.Driver.ExtractElements(ctx, ExtractionPlan{
		Container: container,
		Title:     titleSel,
		Price:     priceSel,
		Link:      linkSel,
		Location:  p.Site.Selectors.Location,
		Image:     p.Site.Selectors.Image,
	})
	if err != nil {
		return nil, err
	}

	return ExtractAds(elements, p.Site, p.Monitor), nil
}
