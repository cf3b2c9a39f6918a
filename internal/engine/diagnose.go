package engine

import "github.com/adlens/marketplace-crawler/internal/model"

// DiagnosePage classifies a loaded page into exactly one PageType.
// The priority order is fixed: overlapping signals (a CAPTCHA shown on a
// login wall, a no-results banner under a Cloudflare challenge) resolve
// deterministically, and a page with no positive signal at all is treated
// as BLOCKED rather than as an empty result set, so a render failure is
// never reported as "zero ads".
func DiagnosePage(sig model.PageSignals) model.PageType {
	switch {
	case sig.HasRecaptcha || sig.HasHcaptcha:
		return model.Captcha
	case sig.HasCloudflare || sig.HasDatadome:
		return model.Blocked
	case sig.HasCheckpoint:
		return model.Checkpoint
	case sig.HasLoginForm || sig.HasLoginText:
		return model.LoginRequired
	case sig.HasNoResultsText && !sig.HasResultsMarker:
		return model.NoResults
	case sig.HasResultsMarker:
		return model.Content
	default:
		return model.Blocked
	}
}
