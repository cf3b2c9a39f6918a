package model

import "time"

type PageType int

const (
	Content PageType = iota
	NoResults
	LoginRequired
	Blocked
	Captcha
	Checkpoint
)

func (pt PageType) String() string {
	return [...]string{"CONTENT", "NO_RESULTS", "LOGIN_REQUIRED", "BLOCKED", "CAPTCHA", "CHECKPOINT"}[pt]
}

// IsSuccess reports whether the page load produced usable content
// (including a genuine empty result set).
func (pt PageType) IsSuccess() bool {
	return pt == Content || pt == NoResults
}

// PageSignals is the raw evidence collected from a loaded page.
// The diagnoser turns it into exactly one PageType.
type PageSignals struct {
	HasRecaptcha      bool `json:"has_recaptcha"`
	HasHcaptcha       bool `json:"has_hcaptcha"`
	HasCloudflare     bool `json:"has_cloudflare"`
	HasDatadome       bool `json:"has_datadome"`
	HasLoginForm      bool `json:"has_login_form"`
	HasLoginText      bool `json:"has_login_text"`
	HasNoResultsText  bool `json:"has_no_results_text"`
	HasResultsMarker  bool `json:"has_results_marker"`
	HasCheckpoint     bool `json:"has_checkpoint"`
	VisibleElemCount  int  `json:"visible_elem_count"`
}

// DiagnosisRecord is the write-once observability artifact for a single
// monitor run. It is handed to the metrics sink and archived to S3;
// the engine never reads it back.
type DiagnosisRecord struct {
	RunID            string         `json:"run_id"`
	MonitorID        int64          `json:"monitor_id"`
	Site             string         `json:"site"`
	URL              string         `json:"url"`
	FinalURL         string         `json:"final_url,omitempty"`
	PageType         string         `json:"page_type"`
	Signals          PageSignals    `json:"signals"`
	SelectorUsed     string         `json:"selector_used,omitempty"`
	SelectorAttempts int            `json:"selector_attempts"`
	Authenticated    bool           `json:"authenticated"`
	SessionID        string         `json:"session_id,omitempty"`
	StealthLevel     string         `json:"stealth_level,omitempty"`
	RawAdCount       int            `json:"raw_ad_count"`
	ValidAdCount     int            `json:"valid_ad_count"`
	SkippedAds       map[string]int `json:"skipped_ads,omitempty"`
	TimeToResolve    int64          `json:"time_to_resolve"` // in milliseconds
	TimeToExtract    int64          `json:"time_to_extract"` // in milliseconds
	Timestamp        time.Time      `json:"timestamp"`
	EngineVersion    string         `json:"engine_version"`
}
