// Package ratelimit throttles requests to public upstreams such as crt.sh.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// jitterFactor spreads waits by ±20% so parallel scans do not hit an
// upstream in lockstep.
const jitterFactor = 0.20

// Limiter is a token bucket with jittered waits. A nil *Limiter never blocks.
type Limiter struct {
	inner *rate.Limiter
}

// New creates a Limiter allowing rps requests per second with the given
// burst. rps <= 0 means unlimited.
func New(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{inner: rate.NewLimiter(limit, max(burst, 1))}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	res := l.inner.Reserve()
	if !res.OK() {
		return ctx.Err()
	}

	delay := res.Delay()
	if delay <= 0 {
		return nil
	}
	jitter := time.Duration(float64(delay) * jitterFactor * (rand.Float64()*2 - 1)) //nolint:gosec // jitter only
	delay = max(0, delay+jitter)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
