package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbckr/lapse/internal/metrics"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/validate"
)

// Default fast-path prefixes.
const (
	DefaultFastPathDomain = 4
	DefaultFastPathSSL    = 1
)

// Config holds the coordinator switches read from configuration.
type Config struct {
	Enabled        bool
	AllowOverwrite bool
	// FastPathDomain and FastPathSSL cap how many providers a fast-path call
	// may walk. Values below 1 leave the chain untruncated.
	FastPathDomain int
	FastPathSSL    int
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		FastPathDomain: DefaultFastPathDomain,
		FastPathSSL:    DefaultFastPathSSL,
	}
}

// Chains are the provider lists for each check type, highest priority first.
type Chains struct {
	Domain []Provider
	SSL    []Provider
}

// DomainSaver persists a domain after its expiry state changed.
type DomainSaver interface {
	SaveDomain(ctx context.Context, d *model.Domain) error
}

// IncidentStore finds and resolves incidents.
type IncidentStore interface {
	OpenIncidents(ctx context.Context, domainID string, category model.CheckType) ([]model.Incident, error)
	ResolveIncident(ctx context.Context, incidentID string, at time.Time) error
}

// Records is the persistence UpdateDomain writes through.
type Records interface {
	DomainSaver
	IncidentStore
}

// Coordinator walks provider chains and applies the update policy.
type Coordinator struct {
	cfg     Config
	chains  Chains
	backoff *Backoff
	records Records
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records provider attempts and backoffs on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator. records may be nil when the caller
// never calls UpdateDomain.
func NewCoordinator(cfg Config, chains Chains, backoff *Backoff, records Records, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		chains:  chains,
		backoff: backoff,
		records: records,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetectDomainExpiry runs the registration chain for d.
func (c *Coordinator) DetectDomainExpiry(ctx context.Context, d *model.Domain, fastPath bool) *Result {
	return c.Detect(ctx, d, model.CheckDomain, fastPath)
}

// DetectSSLExpiry runs the certificate chain for d.
func (c *Coordinator) DetectSSLExpiry(ctx context.Context, d *model.Domain, fastPath bool) *Result {
	return c.Detect(ctx, d, model.CheckSSL, fastPath)
}

// Detect walks the chain for checkType in priority order and returns the
// first valid result, or nil when detection is disabled or every provider
// was skipped or failed. Providers are called one at a time. Once ctx is
// done Detect returns nil without backing off any provider.
func (c *Coordinator) Detect(ctx context.Context, d *model.Domain, checkType model.CheckType, fastPath bool) *Result {
	if !c.cfg.Enabled {
		return nil
	}
	name := validate.NormalizeDomain(d.Name)
	logger := c.logger.With("domain", name, "check", checkType.String())

	var tried []string
	for _, p := range c.chain(checkType, fastPath) {
		if ctx.Err() != nil {
			logger.Debug("detection cancelled", "tried", tried)
			return nil
		}
		provider := p.Name()
		if !p.Enabled() {
			continue
		}
		if c.backoff.IsBackedOff(ctx, d.ID, provider, checkType) {
			logger.Debug("provider backed off", "provider", provider)
			continue
		}

		tried = append(tried, provider)
		res := p.Detect(ctx, name)
		valid := res.IsValid()
		c.metrics.ObserveAttempt(checkType.String(), provider, valid, res.Latency())

		if valid {
			logger.Info("expiry detected",
				"provider", provider,
				"expires_at", res.ExpiryDate.Format(time.RFC3339),
				"latency_ms", latencyAttr(res),
			)
			c.backoff.Clear(ctx, d.ID, provider, checkType)
			return &res
		}
		// A caller that went away says nothing about the provider.
		if ctx.Err() != nil {
			logger.Debug("detection cancelled", "provider", provider)
			return nil
		}

		logger.Warn("expiry provider failed",
			"provider", provider,
			"error", res.Error,
			"latency_ms", latencyAttr(res),
		)
		c.backoff.Apply(ctx, d.ID, provider, checkType)
		c.metrics.IncBackoff(checkType.String(), provider)
	}

	logger.Warn("no provider returned an expiry date", "tried", tried)
	return nil
}

// chain returns the provider list for checkType, truncated on the fast path.
func (c *Coordinator) chain(checkType model.CheckType, fastPath bool) []Provider {
	providers, limit := c.chains.Domain, c.cfg.FastPathDomain
	if checkType == model.CheckSSL {
		providers, limit = c.chains.SSL, c.cfg.FastPathSSL
	}
	if fastPath && limit > 0 && limit < len(providers) {
		return providers[:limit]
	}
	return providers
}

// UpdateDomain applies Decide to the registration and certificate states of
// d independently, saves d when either changed and resolves open incidents
// for every check type whose new expiry clears IncidentCloseThreshold.
// A nil result leaves its state untouched.
func (c *Coordinator) UpdateDomain(ctx context.Context, d *model.Domain, domainResult, sslResult *Result) error {
	if c.records == nil {
		return errors.New("coordinator has no record store")
	}
	now := c.now().UTC()

	var changed bool
	var closeFor []model.CheckType
	for _, u := range []struct {
		checkType model.CheckType
		result    *Result
	}{
		{model.CheckDomain, domainResult},
		{model.CheckSSL, sslResult},
	} {
		if u.result == nil {
			continue
		}
		state := d.State(u.checkType)
		dec := Decide(state.ExpiresAt, *u.result, c.cfg.AllowOverwrite, now)
		if !dec.ShouldUpdate {
			continue
		}
		exp := u.result.ExpiryDate.UTC()
		detected := now
		state.ExpiresAt = &exp
		state.Source = u.result.Source
		state.DetectedAt = &detected
		changed = true
		if dec.CloseIncidents {
			closeFor = append(closeFor, u.checkType)
		}
	}

	if changed {
		if err := c.records.SaveDomain(ctx, d); err != nil {
			return fmt.Errorf("saving domain %q: %w", d.Name, err)
		}
	}

	var errs []error
	for _, checkType := range closeFor {
		if err := c.closeIncidents(ctx, d, checkType, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) closeIncidents(ctx context.Context, d *model.Domain, category model.CheckType, now time.Time) error {
	open, err := c.records.OpenIncidents(ctx, d.ID, category)
	if err != nil {
		return fmt.Errorf("listing %s incidents for %q: %w", category, d.Name, err)
	}
	for _, inc := range open {
		if err := c.records.ResolveIncident(ctx, inc.ID, now); err != nil {
			return fmt.Errorf("resolving incident %q: %w", inc.ID, err)
		}
		c.logger.Info("incident resolved", "domain", d.Name, "incident", inc.ID, "category", category.String())
	}
	return nil
}

func latencyAttr(r Result) float64 {
	if r.LatencyMs == nil {
		return 0
	}
	return *r.LatencyMs
}
