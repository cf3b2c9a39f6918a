package model

import "time"

// MonitorRunTask is the kafka message that schedules one monitor run.
type MonitorRunTask struct {
	MonitorID int64 `json:"monitor_id"`
	Force     bool  `json:"force"`
}

// AdBatch is the kafka message carrying the surviving ads of one run.
type AdBatch struct {
	RunID      string      `json:"run_id"`
	MonitorID  int64       `json:"monitor_id"`
	UserID     int64       `json:"user_id"`
	Site       string      `json:"site"`
	PageType   string      `json:"page_type"`
	Ads        []ScrapedAd `json:"ads"`
	ScrapedAt  time.Time   `json:"scraped_at"`
}
