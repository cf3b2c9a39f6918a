package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/adlens/marketplace-crawler/internal/model"
)

// ErrNoSessions means no active session exists for the (user, site) pair.
var ErrNoSessions = errors.New("no active sessions for user/site")

// Health penalties per observed PageType. Login walls and checkpoints are
// weighted heavier than blocks: they usually mean the session itself is
// unusable, not just rate-limited.
const (
	penaltyBlocked  = 20
	penaltyAuthLost = 50
	penaltyOther    = 10
)

// Store is the persistence port for session records. ApplyReport must be
// atomic at the storage layer (single UPDATE with arithmetic, row lock or
// equivalent): concurrent runs finishing against the same session must not
// lose health updates.
type Store interface {
	ActiveSessions(ctx context.Context, userID int64, site string) ([]model.SessionPoolEntry, error)
	AllSessions(ctx context.Context, userID int64, site string) ([]model.SessionPoolEntry, error)
	ApplyReport(ctx context.Context, sessionID string, report HealthReport) error
	TouchLastUsed(ctx context.Context, sessionID string) error
}

// HealthReport is the outcome of one run as applied to a session record.
type HealthReport struct {
	PageType string
	Penalty  int  // ignored when Reset is set
	Reset    bool // success: health back to 100, failures to 0
}

// Pool picks the healthiest authenticated session per (user, site) and
// adjusts health from scrape outcomes. Scores are persisted and re-read on
// every query, so they survive restarts and are shared across workers.
type Pool struct {
	store Store
}

func NewPool(store Store) *Pool {
	return &Pool{store: store}
}

// ReportResult maps the observed PageType onto a health update.
// CONTENT and NO_RESULTS clear all failure history.
func (p *Pool) ReportResult(ctx context.Context, sessionID string, pageType model.PageType) error {
	report := HealthReport{PageType: pageType.String()}
	switch pageType {
	case model.Content, model.NoResults:
		report.Reset = true
	case model.Blocked, model.Captcha:
		report.Penalty = penaltyBlocked
	case model.LoginRequired, model.Checkpoint:
		report.Penalty = penaltyAuthLost
	default:
		report.Penalty = penaltyOther
	}

	return p.store.ApplyReport(ctx, sessionID, report)
}

// GetBestSession returns the active session with the highest health score,
// ties broken by most recent use. A degraded session (score below 50) is
// still returned with a warning: the pool never refuses to run, it lets
// the next diagnosis adjust health further.
func (p *Pool) GetBestSession(ctx context.Context, userID int64, site string) (*model.SessionPoolEntry, error) {
	sessions, err := p.store.ActiveSessions(ctx, userID, site)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}

	best := &sessions[0]
	for i := 1; i < len(sessions); i++ {
		candidate := &sessions[i]
		if candidate.HealthScore > best.HealthScore ||
			(candidate.HealthScore == best.HealthScore && candidate.LastUsedAt.After(best.LastUsedAt)) {
			best = candidate
		}
	}

	if best.HealthScore < model.DegradedHealthThreshold {
		slog.Warn("best available session is degraded.",
			slog.String("session_id", best.SessionID),
			slog.String("account", best.AccountLabel),
			slog.Int("health_score", best.HealthScore),
			slog.Int("consecutive_failures", best.ConsecutiveFailures))
	}
	if err := p.store.TouchLastUsed(ctx, best.SessionID); err != nil {
		slog.Error("failed to touch session last_used_at.",
			slog.String("session_id", best.SessionID), slog.String("err", err.Error()))
	}

	return best, nil
}

// GetPoolStatus is a read-only snapshot of every session (active or not)
// for the pair, for monitoring.
func (p *Pool) GetPoolStatus(ctx context.Context, userID int64, site string) ([]model.SessionPoolEntry, error) {
	return p.store.AllSessions(ctx, userID, site)
}
