package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/adlens/marketplace-crawler/config"
	"github.com/adlens/marketplace-crawler/internal/aws_s3"
	"github.com/adlens/marketplace-crawler/internal/broker"
	"github.com/adlens/marketplace-crawler/internal/browser"
	"github.com/adlens/marketplace-crawler/internal/cache"
	"github.com/adlens/marketplace-crawler/internal/engine"
	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/persistence"
	"github.com/adlens/marketplace-crawler/internal/session"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/adlens/marketplace-crawler/internal/staticdriver"
	"github.com/adlens/marketplace-crawler/internal/telemetry"
)

type MonitorWorker struct {
	TaskChan   <-chan []byte
	ResultChan chan<- *model.AdBatch
	Cfg        *config.Config
	Registry   *sitecfg.Registry
	Monitors   persistence.MonitorStorage
	Pool       *session.Pool
	Engine     *engine.Engine
	Browser    *browser.Driver
	Static     *staticdriver.Driver
	S3         aws_s3.BucketClient
	Cache      cache.CachedClient
	KafkaDLQ   *broker.KafkaDLQClient
	Metrics    *telemetry.AppMetrics
	Wg         *sync.WaitGroup
}

func (w *MonitorWorker) Run(ctx context.Context) {
	defer w.Wg.Done()
	slog.Debug("starting monitor worker.")

	for value := range w.TaskChan {
		var task model.MonitorRunTask
		if err := json.Unmarshal(value, &task); err != nil {
			slog.Error("failed to unmarshal message.", slog.String("err", err.Error()))
			w.KafkaDLQ.SendTaskToDLQ(string(value), err)
			w.Metrics.FailedProcessedMsgCounter(1)
			continue
		}
		if err := w.processTask(ctx, &task); err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("run cancelled, nothing committed.", slog.Int64("monitor_id", task.MonitorID))
				continue
			}
			slog.Error("monitor run failed.", slog.Int64("monitor_id", task.MonitorID),
				slog.String("err", err.Error()))
			w.KafkaDLQ.SendTaskToDLQ(string(value), err)
			w.Metrics.FailedProcessedMsgCounter(1)
		}
	}
}

func (w *MonitorWorker) processTask(ctx context.Context, task *model.MonitorRunTask) error {
	monitor, err := w.Monitors.GetMonitor(ctx, task.MonitorID)
	if err != nil {
		return err
	}
	siteCfg, ok := w.Registry.Get(monitor.Site)
	if !ok {
		return errors.New("no site config for " + monitor.Site)
	}

	var sess *model.SessionPoolEntry
	var cookies []browser.Cookie
	if siteCfg.AuthMode == sitecfg.CookiesRequired {
		sess, err = w.Pool.GetBestSession(ctx, monitor.UserID, monitor.Site)
		if err != nil {
			return err
		}
		if sess.HealthScore < model.DegradedHealthThreshold {
			w.Metrics.DegradedSessionCounter(monitor.Site)
		}
		if sess.CookiesJSON != "" {
			if err := json.Unmarshal([]byte(sess.CookiesJSON), &cookies); err != nil {
				slog.Warn("failed to decode session cookies, navigating without them.",
					slog.String("session_id", sess.SessionID), slog.String("err", err.Error()))
			}
		}
	}

	driver, navigate, closePage, err := w.preparePage(siteCfg, monitor, cookies)
	if err != nil {
		return err
	}
	defer closePage()

	result, err := w.Engine.Run(ctx, engine.RunParams{
		Driver:   driver,
		Navigate: navigate,
		Site:     siteCfg,
		Monitor:  monitor,
		Session:  sess,
	})
	if err != nil {
		return err
	}

	w.publish(monitor, result)
	w.Metrics.SuccessfullyProcessedCnt(1)

	return nil
}

// preparePage picks the transport for the site: a browser tab for sites
// that need cookies or rendering, a static fetch otherwise. The static
// page only exists after navigation, so it hides behind a late-bound
// PageDriver.
func (w *MonitorWorker) preparePage(siteCfg *sitecfg.SiteConfig, monitor *model.MonitorWithFilters,
	cookies []browser.Cookie) (engine.PageDriver, engine.NavigateFunc, func(), error) {
	if siteCfg.AuthMode == sitecfg.CookiesRequired {
		page, err := w.Browser.NewPage(siteCfg)
		if err != nil {
			return nil, nil, func() {}, err
		}
		navigate := func(ctx context.Context) error {
			return page.Navigate(ctx, monitor.SearchURL, cookies)
		}
		return page, navigate, page.Close, nil
	}

	lazy := &lazyStaticPage{}
	navigate := func(ctx context.Context) error {
		page, err := w.Static.Fetch(ctx, monitor.SearchURL, siteCfg)
		if err != nil {
			return err
		}
		lazy.page = page
		return nil
	}
	return lazy, navigate, func() {}, nil
}

func (w *MonitorWorker) publish(monitor *model.MonitorWithFilters, result *engine.RunResult) {
	record := result.Record
	w.Metrics.PageTypeCounter(record.Site, record.PageType)
	w.Metrics.AdsExtractedCounter(record.Site, int64(record.ValidAdCount))
	for reason, count := range record.SkippedAds {
		w.Metrics.AdsSkippedCounter(record.Site, reason, int64(count))
	}

	// The archive is best effort; losing one record must not fail the run.
	if _, err := w.S3.WriteDiagnosis(record); err != nil {
		slog.Warn("failed to archive diagnosis record.", slog.String("run_id", record.RunID),
			slog.String("err", err.Error()))
	}

	slog.Debug("run finished.",
		slog.String("run_id", record.RunID),
		slog.Int64("monitor_id", monitor.ID),
		slog.String("page_type", record.PageType),
		slog.Int("raw_ads", record.RawAdCount),
		slog.Int("valid_ads", record.ValidAdCount),
		slog.String("selector", record.SelectorUsed),
		slog.Int64("time_to_resolve_ms", record.TimeToResolve),
	)

	fresh := w.Cache.FilterNewAds(monitor.ID, result.Ads)
	if len(fresh) == 0 && result.PageType == model.Content {
		return
	}
	w.ResultChan <- &model.AdBatch{
		RunID:     record.RunID,
		MonitorID: monitor.ID,
		UserID:    monitor.UserID,
		Site:      monitor.Site,
		PageType:  record.PageType,
		Ads:       fresh,
		ScrapedAt: time.Now().UTC(),
	}
	w.Cache.MarkSeen(monitor.ID, fresh)
}

// lazyStaticPage satisfies engine.PageDriver before the static fetch has
// happened. The engine always navigates before touching the page.
type lazyStaticPage struct {
	page *staticdriver.Page
}

var errNotNavigated = errors.New("page not fetched yet")

func (l *lazyStaticPage) WaitForSelector(ctx context.Context, selector string,
	timeout time.Duration) (int, error) {
	if l.page == nil {
		return 0, errNotNavigated
	}
	return l.page.WaitForSelector(ctx, selector, timeout)
}

func (l *lazyStaticPage) Count(ctx context.Context, selector string) (int, error) {
	if l.page == nil {
		return 0, errNotNavigated
	}
	return l.page.Count(ctx, selector)
}

func (l *lazyStaticPage) ExtractElements(ctx context.Context,
	plan engine.ExtractionPlan) ([]model.RawElement, error) {
	if l.page == nil {
		return nil, errNotNavigated
	}
	return l.page.ExtractElements(ctx, plan)
}

func (l *lazyStaticPage) CollectSignals(ctx context.Context,
	cfg *sitecfg.SiteConfig) (model.PageSignals, error) {
	if l.page == nil {
		return model.PageSignals{}, errNotNavigated
	}
	return l.page.CollectSignals(ctx, cfg)
}

func (l *lazyStaticPage) CurrentURL(ctx context.Context) (string, error) {
	if l.page == nil {
		return "", errNotNavigated
	}
	return l.page.CurrentURL(ctx)
}
