package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"golang.org/x/time/rate"
)

// SiteRateLimiter gates page fetches per site with a token bucket:
// capacity = tokens/min, continuous refill at tokens/min ÷ 60 per second.
// Acquire blocks until a token is available; a scheduled run is delayed,
// never dropped. Buckets for different sites never contend.
type SiteRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSiteRateLimiter() *SiteRateLimiter {
	return &SiteRateLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Acquire blocks until a token for the site is available or ctx is
// cancelled. The limit config travels with the call so a registry hot
// reload takes effect on the next bucket creation.
func (l *SiteRateLimiter) Acquire(ctx context.Context, site string, cfg sitecfg.RateLimitConfig) error {
	limiter := l.limiterFor(site, cfg)
	if !limiter.Allow() {
		slog.Debug("rate limit reached, waiting for token.", slog.String("site", site))
		return limiter.Wait(ctx)
	}
	return nil
}

func (l *SiteRateLimiter) limiterFor(site string, cfg sitecfg.RateLimitConfig) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[site]
	if !ok {
		tokensPerMin := cfg.TokensPerMin
		if tokensPerMin <= 0 {
			tokensPerMin = 1
		}
		limiter = rate.NewLimiter(rate.Limit(tokensPerMin)/60, tokensPerMin)
		l.limiters[site] = limiter
	}
	return limiter
}
