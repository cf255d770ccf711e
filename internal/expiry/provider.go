package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider queries exactly one upstream for an expiry date.
//
// Detect must bound its own latency and must never panic; every failure is
// reported as a Result with Success=false. Name must be unique within a chain
// since it keys backoff markers and metrics.
type Provider interface {
	Name() string
	Enabled() bool
	Detect(ctx context.Context, domain string) Result
}

// DefaultTimeout bounds a single provider call when none is configured.
const DefaultTimeout = 8 * time.Second

// FetchFunc queries one upstream and returns the expiry date it reports.
type FetchFunc func(ctx context.Context) (time.Time, error)

// Attempt runs fetch under timeout and converts its outcome into a Result
// attributed to source. A panic inside fetch is recovered into a failure.
// timeout <= 0 uses DefaultTimeout.
func Attempt(ctx context.Context, source string, timeout time.Duration, fetch FetchFunc) (res Result) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Failed(source, fmt.Sprintf("provider panicked: %v", r), time.Since(start))
		}
	}()

	date, err := fetch(ctx)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failed(source, fmt.Sprintf("timed out after %s: %v", timeout, err), latency)
		}
		return Failed(source, err.Error(), latency)
	}
	return Succeeded(source, date, latency)
}
