package engine

import (
	"context"
	"log/slog"
	"time"
)

// Pause between timeout levels so late-rendering content gets a chance
// before the next, longer wait starts.
const interLevelPause = 250 * time.Millisecond

// ResolveResult reports how the container lookup went. Found=false is a
// retryable condition, not an error: the page may simply still be loading
// or the selector set may have drifted.
type ResolveResult struct {
	Selector    string
	Matches     int
	Attempts    int // timeout levels tried
	TimeoutUsed time.Duration
	Elapsed     time.Duration
}

func (r ResolveResult) Found() bool {
	return r.Selector != ""
}

// WaitForContainer walks the escalating timeout levels and, at each level,
// tries every candidate selector in order. The first selector with at
// least one match wins. Trying all candidates per level favors the common
// fast case over exhaustive waiting.
func WaitForContainer(ctx context.Context, d PageDriver, selectors []string,
	timeouts []time.Duration) (ResolveResult, error) {
	start := time.Now()
	res := ResolveResult{}

	for level, timeout := range timeouts {
		res.Attempts = level + 1
		res.TimeoutUsed = timeout
		for _, selector := range selectors {
			count, err := d.WaitForSelector(ctx, selector, timeout)
			if err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
			if count > 0 {
				res.Selector = selector
				res.Matches = count
				res.Elapsed = time.Since(start)
				slog.Debug("container resolved.", slog.String("selector", selector),
					slog.Int("matches", count), slog.Int("attempts", res.Attempts))
				return res, nil
			}
		}
		if level < len(timeouts)-1 {
			select {
			case <-time.After(interLevelPause):
			case <-ctx.Done():
				res.Elapsed = time.Since(start)
				return res, ctx.Err()
			}
		}
	}
	res.Elapsed = time.Since(start)
	slog.Debug("container not found.", slog.Int("attempts", res.Attempts),
		slog.Duration("final_timeout", res.TimeoutUsed))

	return res, nil
}

// FindSelector is the cheap single-pass variant used for field selectors
// once the container is known to exist. Returns "" when nothing matches.
func FindSelector(ctx context.Context, d PageDriver, selectors []string) (string, error) {
	for _, selector := range selectors {
		count, err := d.Count(ctx, selector)
		if err != nil {
			return "", err
		}
		if count > 0 {
			return selector, nil
		}
	}
	return "", nil
}
