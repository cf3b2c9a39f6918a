package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/session"
)

// SessionRepository implements session.Store on Postgres. Health updates
// run as a single arithmetic UPDATE so concurrent reports against the same
// session serialize at the row level and never lose an update.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, site, account_label, health_score,
	COALESCE(last_page_type, ''), consecutive_failures,
	COALESCE(last_used_at, to_timestamp(0)), COALESCE(last_report_at, to_timestamp(0)),
	status = 'active', COALESCE(cookies, '')`

func (sr *SessionRepository) ActiveSessions(ctx context.Context, userID int64,
	site string) ([]model.SessionPoolEntry, error) {
	rows, err := sr.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM marketplace.sessions
		WHERE user_id = $1 AND site = $2 AND status = 'active'`, userID, site)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

func (sr *SessionRepository) AllSessions(ctx context.Context, userID int64,
	site string) ([]model.SessionPoolEntry, error) {
	rows, err := sr.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM marketplace.sessions
		WHERE user_id = $1 AND site = $2`, userID, site)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

func (sr *SessionRepository) ApplyReport(ctx context.Context, sessionID string,
	report session.HealthReport) error {
	_, err := sr.db.ExecContext(ctx, `UPDATE marketplace.sessions
		SET health_score = CASE WHEN $2 THEN 100 ELSE GREATEST(health_score - $3, 0) END,
		    consecutive_failures = CASE WHEN $2 THEN 0 ELSE consecutive_failures + 1 END,
		    last_page_type = $4,
		    last_report_at = $5
		WHERE id = $1`,
		sessionID, report.Reset, report.Penalty, report.PageType, time.Now().UTC())

	return err
}

func (sr *SessionRepository) TouchLastUsed(ctx context.Context, sessionID string) error {
	_, err := sr.db.ExecContext(ctx, `UPDATE marketplace.sessions
		SET last_used_at = $2 WHERE id = $1`, sessionID, time.Now().UTC())

	return err
}

func scanSessions(rows *sql.Rows) ([]model.SessionPoolEntry, error) {
	var sessions []model.SessionPoolEntry
	for rows.Next() {
		var s model.SessionPoolEntry
		err := rows.Scan(&s.SessionID, &s.UserID, &s.Site, &s.AccountLabel, &s.HealthScore,
			&s.LastPageType, &s.ConsecutiveFailures, &s.LastUsedAt, &s.LastReportAt,
			&s.Active, &s.CookiesJSON)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}
