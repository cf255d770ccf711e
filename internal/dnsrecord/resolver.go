package dnsrecord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tbckr/lapse/internal/cache"
	"github.com/tbckr/lapse/internal/validate"
)

// Defaults for NewResolver.
const (
	DefaultRetries    = 2
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultCacheTTL   = 900 * time.Second
)

// Resolver is request-scoped: create one per scan so its memo lives exactly
// as long as the scan. The shared store outlives it.
type Resolver struct {
	lookuper   Lookuper
	store      cache.Store
	logger     *slog.Logger
	retries    int
	retryDelay time.Duration
	ttl        time.Duration

	mu   sync.Mutex
	memo map[string][]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRetries sets how many extra attempts follow a failed lookup.
func WithRetries(n int) Option {
	return func(r *Resolver) { r.retries = max(n, 0) }
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Resolver) { r.retryDelay = max(d, 0) }
}

// WithCacheTTL sets how long results stay in the shared store.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Resolver) { r.ttl = d }
}

// NewResolver creates a Resolver with an empty memo.
func NewResolver(lookuper Lookuper, store cache.Store, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		lookuper:   lookuper,
		store:      store,
		logger:     logger,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		ttl:        DefaultCacheTTL,
		memo:       make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetTXT returns the TXT strings of name.
func (r *Resolver) GetTXT(ctx context.Context, name string) []string {
	return r.Resolve(ctx, TypeTXT, name)
}

// GetA returns the IPv4 addresses of name.
func (r *Resolver) GetA(ctx context.Context, name string) []string {
	return r.Resolve(ctx, TypeA, name)
}

// GetAAAA returns the IPv6 addresses of name.
func (r *Resolver) GetAAAA(ctx context.Context, name string) []string {
	return r.Resolve(ctx, TypeAAAA, name)
}

// GetMX returns the mail exchanger hosts of name, lowest preference first.
func (r *Resolver) GetMX(ctx context.Context, name string) []string {
	return r.Resolve(ctx, TypeMX, name)
}

// Resolve returns the rt records of name. It never fails; when every attempt
// failed the result is empty. A result cut short by ctx is neither memoized
// nor written to the shared store.
func (r *Resolver) Resolve(ctx context.Context, rt RecordType, name string) []string {
	name = validate.NormalizeDomain(name)
	if name == "" {
		return []string{}
	}
	key := cacheKey(rt, name)

	r.mu.Lock()
	cached, ok := r.memo[key]
	r.mu.Unlock()
	if ok {
		return clone(cached)
	}

	records, err := cache.RememberJSON(ctx, r.store, key, r.ttl, func(ctx context.Context) ([]string, error) {
		records := r.lookup(ctx, rt, name)
		// An empty answer caused by the caller going away must not be cached.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return []string{}
		}
		r.logger.Debug("shared DNS cache unavailable", "type", string(rt), "domain", name, "error", err)
		records = r.lookup(ctx, rt, name)
		if ctx.Err() != nil {
			return []string{}
		}
	}
	if records == nil {
		records = []string{}
	}

	r.mu.Lock()
	r.memo[key] = records
	r.mu.Unlock()
	return clone(records)
}

// lookup runs up to retries+1 attempts, returning the first success.
func (r *Resolver) lookup(ctx context.Context, rt RecordType, name string) []string {
	attempts := r.retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		records, err := r.lookuper.Lookup(ctx, rt, name)
		if err == nil {
			if records == nil {
				records = []string{}
			}
			return records
		}
		if attempt == attempts {
			r.logger.Debug("DNS lookup attempt failed", "type", string(rt), "domain", name, "attempt", attempt, "error", err)
			break
		}
		if !sleep(ctx, r.retryDelay) {
			break
		}
	}
	r.logger.Warn("DNS lookup failed after retries", "type", string(rt), "domain", name, "attempts", attempts)
	return []string{}
}

func cacheKey(rt RecordType, name string) string {
	return "dns:" + string(rt) + ":" + name
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func clone(s []string) []string {
	return append(make([]string, 0, len(s)), s...)
}
