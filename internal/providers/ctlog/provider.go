// Package ctlog derives certificate expiry from Certificate Transparency
// logs via crt.sh. It works even when the host is unreachable, but it sees
// issued certificates, not necessarily the one being served.
package ctlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/providers/whoistext"
	"github.com/tbckr/lapse/internal/validate"
)

// Name identifies the provider in results, backoff keys and metrics.
const Name = "Certificate Transparency"

// DefaultURL is the crt.sh search endpoint.
const DefaultURL = "https://crt.sh/"

// Options configures the provider.
type Options struct {
	Enabled bool
	Timeout time.Duration
	URL     string
}

type entry struct {
	ID         int64  `json:"id"`
	CommonName string `json:"common_name"`
	NameValue  string `json:"name_value"`
	NotAfter   string `json:"not_after"`
}

// Provider implements expiry.Provider.
type Provider struct {
	client *req.Client
	opts   Options
	logger *slog.Logger
}

var _ expiry.Provider = (*Provider)(nil)

// New creates the provider. client should carry a rate limiter: crt.sh
// throttles aggressively.
func New(client *req.Client, opts Options, logger *slog.Logger) *Provider {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	return &Provider{client: client, opts: opts, logger: logger}
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
	var entries []entry
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":       domain,
			"output":  "json",
			"exclude": "expired",
		}).
		SetSuccessResult(&entries).
		Get(p.opts.URL)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: crt.sh request error for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	if !resp.IsSuccessState() {
		body := resp.String()
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		return time.Time{}, fmt.Errorf("%w: crt.sh returned HTTP %d for %q: %q", apperr.ErrRequestFailed, resp.StatusCode, domain, body)
	}

	var latest time.Time
	var latestID int64
	for _, e := range entries {
		if !entryCovers(e, domain) {
			continue
		}
		t, err := whoistext.ParseDate(e.NotAfter)
		if err != nil {
			p.logger.Debug("crt.sh: skipping unparseable not_after", "domain", domain, "id", e.ID, "not_after", e.NotAfter)
			continue
		}
		if t.After(latest) {
			latest, latestID = t, e.ID
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("%w: crt.sh has no unexpired certificate covering %q (%d entries)", apperr.ErrNoExpiry, domain, len(entries))
	}
	p.logger.Debug("crt.sh: latest certificate", "domain", domain, "id", latestID, "not_after", latest)
	return latest, nil
}

func entryCovers(e entry, domain string) bool {
	for _, field := range []string{e.CommonName, e.NameValue} {
		for name := range strings.SplitSeq(field, "\n") {
			if Covers(validate.StripANSI(name), domain) {
				return true
			}
		}
	}
	return false
}

// Covers reports whether certificate name pattern matches domain. A leading
// wildcard matches exactly one label.
func Covers(pattern, domain string) bool {
	pattern = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(pattern)), ".")
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if pattern == "" || domain == "" {
		return false
	}
	if pattern == domain {
		return true
	}
	parent, ok := strings.CutPrefix(pattern, "*.")
	if !ok {
		return false
	}
	label, rest, found := strings.Cut(domain, ".")
	return found && label != "" && rest == parent
}
