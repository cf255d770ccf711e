// Package whoiscli runs the system whois binary, which knows registry
// quirks the library clients miss.
package whoiscli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/providers/whoistext"
)

// Name identifies the provider in results, backoff keys and metrics.
const Name = "WHOIS CLI"

// DefaultBinary is looked up on PATH.
const DefaultBinary = "whois"

// Runner executes name with args and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Options configures the provider.
type Options struct {
	Enabled bool
	Timeout time.Duration
	Binary  string
}

// Provider implements expiry.Provider.
type Provider struct {
	run    Runner
	opts   Options
	logger *slog.Logger
}

var _ expiry.Provider = (*Provider)(nil)

// New creates the provider. A nil run executes the binary via os/exec.
func New(run Runner, opts Options, logger *slog.Logger) *Provider {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if run == nil {
		run = execRunner
	}
	return &Provider{run: run, opts: opts, logger: logger}
}

// Name implements expiry.Provider.
func (p *Provider) Name() string { return Name }

// Enabled implements expiry.Provider.
func (p *Provider) Enabled() bool { return p.opts.Enabled }

// Detect implements expiry.Provider.
func (p *Provider) Detect(ctx context.Context, domain string) expiry.Result {
	return expiry.Attempt(ctx, Name, p.opts.Timeout, func(ctx context.Context) (time.Time, error) {
		if strings.HasPrefix(domain, "-") {
			return time.Time{}, fmt.Errorf("%w: refusing domain %q", apperr.ErrInvalidInput, domain)
		}
		out, err := p.run(ctx, p.opts.Binary, domain)
		if err != nil && len(out) == 0 {
			return time.Time{}, fmt.Errorf("%w: %s %s: %w", apperr.ErrRequestFailed, p.opts.Binary, domain, err)
		}
		if err != nil {
			// whois exits non-zero on some referral failures but still prints the registry answer.
			p.logger.Debug("whois exited with error, parsing partial output", "provider", Name, "domain", domain, "error", err)
		}
		return whoistext.ExtractExpiry(string(out))
	})
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
	}
	return stdout.Bytes(), err
}
