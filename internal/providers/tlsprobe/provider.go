// Package tlsprobe reads the certificate expiry straight from a TLS
// handshake with the domain's HTTPS endpoint.
package tlsprobe

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
)

// Name identifies the provider in results, backoff keys and metrics.
const Name = "TLS Handshake"

// DefaultPort is the HTTPS port.
const DefaultPort = 443

// Options configures the provider.
type Options struct {
	Enabled bool
	Timeout time.Duration
	Port    int
	// Dialer routes the TCP connection, e.g. through SOCKS5. Nil dials directly.
	Dialer proxy.ContextDialer
}

// Provider implements expiry.Provider.
type Provider struct {
	opts   Options
	logger *slog.Logger
}

var _ expiry.Provider = (*Provider)(nil)

// New creates the provider.
func New(opts Options, logger *slog.Logger) *Provider {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{KeepAlive: -1}
	}
	return &Provider{opts: opts, logger: logger}
}

// Name implements expiry.Provider.
func (p *Provider) Name() string { return Name }

// Enabled implements expiry.Provider.
func (p *Provider) Enabled() bool { return p.opts.Enabled }

// Detect implements expiry.Provider.
func (p *Provider) Detect(ctx context.Context, domain string) expiry.Result {
	return expiry.Attempt(ctx, Name, p.opts.Timeout, func(ctx context.Context) (time.Time, error) {
		return p.handshake(ctx, domain)
	})
}

// handshake returns the leaf certificate's NotAfter. The chain is not
// verified: an expired or self-signed certificate still has an expiry date
// worth reporting.
func (p *Provider) handshake(ctx context.Context, domain string) (time.Time, error) {
	addr := net.JoinHostPort(domain, strconv.Itoa(p.opts.Port))
	raw, err := p.opts.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dialing %s: %w", apperr.ErrRequestFailed, addr, err)
	}
	defer raw.Close()

	conn := tls.Client(raw, &tls.Config{
		ServerName:         domain,
		InsecureSkipVerify: true, //nolint:gosec // expiry is read from whatever the server presents
		MinVersion:         tls.VersionTLS10,
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		return time.Time{}, fmt.Errorf("%w: TLS handshake with %s: %w", apperr.ErrRequestFailed, addr, err)
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, fmt.Errorf("%w: %s presented no certificate", apperr.ErrNoExpiry, addr)
	}
	leaf := certs[0]
	p.logger.Debug("tls certificate received", "provider", Name, "domain", domain,
		"subject", leaf.Subject.CommonName, "not_after", leaf.NotAfter)
	return leaf.NotAfter, nil
}
