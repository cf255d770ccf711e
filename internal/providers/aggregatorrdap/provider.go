// Package aggregatorrdap queries an RDAP redirector such as rdap.org, which
// forwards to the right registry without a local bootstrap step.
package aggregatorrdap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/providers/whoistext"
)

// Name identifies the provider in results, backoff keys and metrics.
const Name = "Aggregator RDAP"

// DefaultBaseURL is the public RDAP redirector.
const DefaultBaseURL = "https://rdap.org"

// Options configures the provider.
type Options struct {
	Enabled bool
	Timeout time.Duration
	BaseURL string
}

type rdapEvent struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

type rdapDomain struct {
	ObjectClassName string      `json:"objectClassName"`
	Events          []rdapEvent `json:"events"`
}

// Provider implements expiry.Provider.
type Provider struct {
	client *req.Client
	opts   Options
	logger *slog.Logger
}

var _ expiry.Provider = (*Provider)(nil)

// New creates the provider on the shared HTTP client.
func New(client *req.Client, opts Options, logger *slog.Logger) *Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
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
	var body rdapDomain
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/rdap+json, application/json").
		SetPathParam("domain", domain).
		SetSuccessResult(&body).
		Get(p.opts.BaseURL + "/domain/{domain}")
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: RDAP request error for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return time.Time{}, fmt.Errorf("%w: RDAP has no record for %q", apperr.ErrNotFound, domain)
	}
	if !resp.IsSuccessState() {
		return time.Time{}, fmt.Errorf("%w: RDAP returned HTTP %d for %q", apperr.ErrRequestFailed, resp.StatusCode, domain)
	}
	if body.ObjectClassName != "" && body.ObjectClassName != "domain" {
		return time.Time{}, fmt.Errorf("%w: RDAP answered object class %q for %q", apperr.ErrRequestFailed, body.ObjectClassName, domain)
	}

	for _, ev := range body.Events {
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
