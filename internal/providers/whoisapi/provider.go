// Package whoisapi reads expiry dates from a WhoisXML-style JSON API.
package whoisapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/providers/whoistext"
)

// Name identifies the provider in results, backoff keys and metrics.
const Name = "WHOIS API"

// DefaultURL is the WhoisXML API WHOIS endpoint.
const DefaultURL = "https://www.whoisxmlapi.com/whoisserver/WhoisService"

// Options configures the provider.
type Options struct {
	Enabled bool
	Timeout time.Duration
	URL     string
	APIKey  string
}

type apiResponse struct {
	WhoisRecord *struct {
		ExpiresDate  string `json:"expiresDate"`
		RegistryData *struct {
			ExpiresDate string `json:"expiresDate"`
		} `json:"registryData"`
		DataError string `json:"dataError"`
	} `json:"WhoisRecord"`
	ErrorMessage *struct {
		ErrorCode string `json:"errorCode"`
		Msg       string `json:"msg"`
	} `json:"ErrorMessage"`
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
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	return &Provider{client: client, opts: opts, logger: logger}
}

// Name implements expiry.Provider.
func (p *Provider) Name() string { return Name }

// Enabled reports true only when the provider is switched on and has an API key.
func (p *Provider) Enabled() bool { return p.opts.Enabled && p.opts.APIKey != "" }

// Detect implements expiry.Provider.
func (p *Provider) Detect(ctx context.Context, domain string) expiry.Result {
	return expiry.Attempt(ctx, Name, p.opts.Timeout, func(ctx context.Context) (time.Time, error) {
		return p.fetch(ctx, domain)
	})
}

func (p *Provider) fetch(ctx context.Context, domain string) (time.Time, error) {
	if p.opts.APIKey == "" {
		return time.Time{}, fmt.Errorf("%w: WHOIS API key is not configured", apperr.ErrInvalidInput)
	}
	var body apiResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apiKey":       p.opts.APIKey,
			"domainName":   domain,
			"outputFormat": "JSON",
		}).
		SetSuccessResult(&body).
		Get(p.opts.URL)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: WHOIS API request error for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	if !resp.IsSuccessState() {
		return time.Time{}, fmt.Errorf("%w: WHOIS API returned HTTP %d for %q", apperr.ErrRequestFailed, resp.StatusCode, domain)
	}
	if body.ErrorMessage != nil {
		return time.Time{}, fmt.Errorf("%w: WHOIS API error %s: %s", apperr.ErrRequestFailed, body.ErrorMessage.ErrorCode, body.ErrorMessage.Msg)
	}
	rec := body.WhoisRecord
	if rec == nil {
		return time.Time{}, fmt.Errorf("%w: WHOIS API response for %q has no WhoisRecord", apperr.ErrNoExpiry, domain)
	}

	candidates := []string{rec.ExpiresDate}
	if rec.RegistryData != nil {
		candidates = []string{rec.RegistryData.ExpiresDate, rec.ExpiresDate}
	}
	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		if t, err := whoistext.ParseDate(raw); err == nil {
			return t, nil
		}
		p.logger.Debug("unparseable WHOIS API date", "provider", Name, "domain", domain, "date", raw)
	}
	if rec.DataError != "" {
		return time.Time{}, fmt.Errorf("%w: WHOIS API reports %s for %q", apperr.ErrNoExpiry, rec.DataError, domain)
	}
	return time.Time{}, fmt.Errorf("%w: WHOIS API record for %q has no expiry date", apperr.ErrNoExpiry, domain)
}
