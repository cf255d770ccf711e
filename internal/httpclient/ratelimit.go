package httpclient

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/lapse/internal/ratelimit"
)

const (
	// retryCount stays low: each provider call has its own deadline and a
	// failed provider simply hands over to the next one in the chain.
	retryCount             = 2
	retryAfterFallback     = 2 * time.Second
	retryAfterCap          = 10 * time.Second
	transportRetryInterval = 500 * time.Millisecond
)

// AttachRateLimit gates every request of client on limiter and retries
// HTTP 429 and transient transport errors. Retry-After is honoured up to
// retryAfterCap. Context cancellation and deadlines are never retried.
func AttachRateLimit(client *req.Client, limiter *ratelimit.Limiter) {
	client.OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
		return limiter.Wait(r.Context())
	})

	client.SetCommonRetryCount(retryCount)
	client.AddCommonRetryCondition(func(resp *req.Response, _ error) bool {
		return resp != nil && resp.Response != nil && resp.StatusCode == http.StatusTooManyRequests
	})
	client.AddCommonRetryCondition(func(_ *req.Response, err error) bool {
		if err == nil {
			return false
		}
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	})
	client.SetCommonRetryInterval(func(resp *req.Response, _ int) time.Duration {
		if resp == nil || resp.Response == nil {
			return transportRetryInterval
		}
		return parseRetryAfter(resp.Header.Get("Retry-After"))
	})
}

// parseRetryAfter accepts integer seconds or an HTTP-date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return retryAfterFallback
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return min(time.Duration(secs)*time.Second, retryAfterCap)
	}
	if t, err := http.ParseTime(header); err == nil {
		return min(max(time.Until(t), 0), retryAfterCap)
	}
	return retryAfterFallback
}
