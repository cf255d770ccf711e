// Package whoistcp queries WHOIS servers directly over port 43, following
// registry referrals to the registrar server.
package whoistcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/likexian/whois"
	"golang.org/x/net/proxy"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/providers/whoistext"
)

// Name identifies the provider in results, backoff keys and metrics.
const Name = "WHOIS"

// Client is the subset of *whois.Client the provider uses.
type Client interface {
	Whois(domain string, servers ...string) (string, error)
}

// Options configures the provider.
type Options struct {
	Enabled bool
	Timeout time.Duration
	// Server pins the WHOIS server. Empty means IANA referral.
	Server string
	// Dialer routes the TCP connection, e.g. through SOCKS5. Nil dials directly.
	Dialer proxy.Dialer
}

// Provider implements expiry.Provider.
type Provider struct {
	client Client
	opts   Options
	logger *slog.Logger
}

var _ expiry.Provider = (*Provider)(nil)

// New creates the provider with a likexian/whois client.
func New(opts Options, logger *slog.Logger) *Provider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = expiry.DefaultTimeout
	}
	c := whois.NewClient().SetTimeout(timeout)
	if opts.Dialer != nil {
		c.SetDialer(opts.Dialer)
	}
	return NewWithClient(c, opts, logger)
}

// NewWithClient creates the provider on an existing client.
func NewWithClient(client Client, opts Options, logger *slog.Logger) *Provider {
	return &Provider{client: client, opts: opts, logger: logger}
}

// Name implements expiry.Provider.
func (p *Provider) Name() string { return Name }

// Enabled implements expiry.Provider.
func (p *Provider) Enabled() bool { return p.opts.Enabled }

// Detect implements expiry.Provider.
func (p *Provider) Detect(ctx context.Context, domain string) expiry.Result {
	return expiry.Attempt(ctx, Name, p.opts.Timeout, func(ctx context.Context) (time.Time, error) {
		text, err := p.query(ctx, domain)
		if err != nil {
			return time.Time{}, err
		}
		return whoistext.ExtractExpiry(text)
	})
}

type reply struct {
	text string
	err  error
}

// query runs the blocking WHOIS call and abandons it when ctx ends; the
// client's own timeout closes the connection shortly after.
func (p *Provider) query(ctx context.Context, domain string) (string, error) {
	var servers []string
	if p.opts.Server != "" {
		servers = []string{p.opts.Server}
	}
	done := make(chan reply, 1)
	go func() {
		text, err := p.client.Whois(domain, servers...)
		done <- reply{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: WHOIS query for %q: %w", apperr.ErrRequestFailed, domain, r.err)
		}
		p.logger.Debug("whois response received", "provider", Name, "domain", domain, "bytes", len(r.text))
		return r.text, nil
	}
}
