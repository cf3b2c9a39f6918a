package engine

import (
	"context"
	"testing"
	"time"

	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWithinBurst(t *testing.T) {
	limiter := NewSiteRateLimiter()
	cfg := sitecfg.RateLimitConfig{TokensPerMin: 10}

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Acquire(context.Background(), "craigslist", cfg))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "full burst must not block")
}

// With one token a minute the second permit is ~60s away; a short context
// deadline must surface as an error instead of a silent long sleep.
func TestAcquireBlocksWhenExhausted(t *testing.T) {
	limiter := NewSiteRateLimiter()
	cfg := sitecfg.RateLimitConfig{TokensPerMin: 1}

	require.NoError(t, limiter.Acquire(context.Background(), "facebook", cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := limiter.Acquire(ctx, "facebook", cfg)
	assert.Error(t, err)
}

func TestAcquireSitesDoNotContend(t *testing.T) {
	limiter := NewSiteRateLimiter()
	cfg := sitecfg.RateLimitConfig{TokensPerMin: 1}

	require.NoError(t, limiter.Acquire(context.Background(), "facebook", cfg))
	// A different site has its own untouched bucket.
	require.NoError(t, limiter.Acquire(context.Background(), "craigslist", cfg))
}

func TestAcquireZeroConfigFallsBackToOneToken(t *testing.T) {
	limiter := NewSiteRateLimiter()
	cfg := sitecfg.RateLimitConfig{TokensPerMin: 0}

	require.NoError(t, limiter.Acquire(context.Background(), "misconfigured", cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Acquire(ctx, "misconfigured", cfg))
}
