package model

import "time"

const (
	FullHealth = 100
	// GetBestSession logs a warning below this score but still returns
	// the session. The engine never refuses to run.
	DegradedHealthThreshold = 50
)

// SessionPoolEntry is one authenticated session for a (userId, site,
// accountLabel) triple. Health state is persisted and survives restarts.
type SessionPoolEntry struct {
	SessionID           string    `json:"session_id"`
	UserID              int64     `json:"user_id"`
	Site                string    `json:"site"`
	AccountLabel        string    `json:"account_label"`
	HealthScore         int       `json:"health_score"`
	LastPageType        string    `json:"last_page_type,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastUsedAt          time.Time `json:"last_used_at"`
	LastReportAt        time.Time `json:"last_report_at"`
	Active              bool      `json:"active"`
	CookiesJSON         string    `json:"-"`
}
