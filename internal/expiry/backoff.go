package expiry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tbckr/lapse/internal/cache"
	"github.com/tbckr/lapse/internal/model"
)

// DefaultBackoffTTL is how long a failed provider is skipped for one subject.
const DefaultBackoffTTL = 300 * time.Second

var backoffMarker = []byte("1")

// Backoff tracks per (check type, subject, provider) cooldown windows in a
// shared cache.Store. Absence of a marker means "not backed off".
type Backoff struct {
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewBackoff creates a Backoff. A ttl <= 0 falls back to DefaultBackoffTTL.
func NewBackoff(store cache.Store, ttl time.Duration, logger *slog.Logger) *Backoff {
	if ttl <= 0 {
		ttl = DefaultBackoffTTL
	}
	return &Backoff{store: store, ttl: ttl, logger: logger}
}

// TTL returns the configured cooldown window.
func (b *Backoff) TTL() time.Duration { return b.ttl }

// IsBackedOff reports whether provider is cooling down for subjectID.
// A store error is treated as "not backed off".
func (b *Backoff) IsBackedOff(ctx context.Context, subjectID, provider string, checkType model.CheckType) bool {
	ok, err := b.store.Has(ctx, BackoffKey(checkType, subjectID, provider))
	if err != nil {
		b.logger.Debug("backoff lookup failed", "subject", subjectID, "provider", provider, "check", checkType, "error", err)
		return false
	}
	return ok
}

// Apply opens a cooldown window for provider.
func (b *Backoff) Apply(ctx context.Context, subjectID, provider string, checkType model.CheckType) {
	if err := b.store.Put(ctx, BackoffKey(checkType, subjectID, provider), backoffMarker, b.ttl); err != nil {
		b.logger.Warn("applying backoff failed", "subject", subjectID, "provider", provider, "check", checkType, "error", err)
	}
}

// Clear closes any cooldown window for provider immediately.
func (b *Backoff) Clear(ctx context.Context, subjectID, provider string, checkType model.CheckType) {
	if err := b.store.Forget(ctx, BackoffKey(checkType, subjectID, provider)); err != nil {
		b.logger.Warn("clearing backoff failed", "subject", subjectID, "provider", provider, "check", checkType, "error", err)
	}
}

// BackoffKey derives the store key "backoff:<check>:<subject>:<slug>".
func BackoffKey(checkType model.CheckType, subjectID, provider string) string {
	return "backoff:" + checkType.String() + ":" + subjectID + ":" + Slug(provider)
}

// Slug lowercases name and replaces spaces with underscores.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
