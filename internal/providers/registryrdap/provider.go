// Package registryrdap asks the authoritative registry RDAP server for a
// domain's expiration event. The server is found via IANA bootstrap unless
// a fixed server is configured.
package registryrdap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openrdap/rdap"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/providers/whoistext"
)

// Name identifies the provider in results, backoff keys and metrics.
const Name = "Registry RDAP"

// Options configures the provider.
type Options struct {
	Enabled bool
	Timeout time.Duration
	// Server is a fixed RDAP base URL. Empty means IANA bootstrap.
	Server    string
	UserAgent string
}

// Provider implements expiry.Provider.
type Provider struct {
	client *rdap.Client
	server *url.URL
	opts   Options
	logger *slog.Logger
}

var _ expiry.Provider = (*Provider)(nil)

// New creates the provider. httpClient may be nil.
func New(httpClient *http.Client, opts Options, logger *slog.Logger) (*Provider, error) {
	p := &Provider{
		client: &rdap.Client{HTTP: httpClient, UserAgent: opts.UserAgent},
		opts:   opts,
		logger: logger,
	}
	if opts.Server != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.Server, "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: registry RDAP server %q must be an absolute URL", apperr.ErrInvalidInput, opts.Server)
		}
		p.server = u
	}
	return p, nil
}

// Name implements expiry.Provider.
func (p *Provider) Name() string { return Name }

// Enabled implements expiry.Provider.
func (p *Provider) Enabled() bool { return p.opts.Enabled }

// Detect implements expiry.Provider.
func (p *Provider) Detect(ctx context.Context, domain string) expiry.Result {
	return expiry.Attempt(ctx, Name, p.opts.Timeout, func(ctx context.Context) (time.Time, error) {
		return p.fetch(ctx, domain)
	})
}

func (p *Provider) fetch(ctx context.Context, domain string) (time.Time, error) {
	req := (&rdap.Request{Type: rdap.DomainRequest, Query: domain}).WithContext(ctx)
	if p.server != nil {
		req = req.WithServer(p.server)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: RDAP query for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	d, ok := resp.Object.(*rdap.Domain)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: RDAP answered %T for %q, want domain", apperr.ErrRequestFailed, resp.Object, domain)
	}
	for _, ev := range d.Events {
		if !strings.EqualFold(ev.Action, "expiration") {
			continue
		}
		t, err := whoistext.ParseDate(ev.Date)
		if err != nil {
			p.logger.Debug("unparseable RDAP expiration event", "provider", Name, "domain", domain, "date", ev.Date)
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: RDAP record for %q has no expiration event", apperr.ErrNoExpiry, domain)
}
