package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/imroc/req/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tbckr/lapse/internal/cache"
	"github.com/tbckr/lapse/internal/config"
	"github.com/tbckr/lapse/internal/dnsrecord"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/httpclient"
	"github.com/tbckr/lapse/internal/metrics"
	"github.com/tbckr/lapse/internal/output"
	"github.com/tbckr/lapse/internal/portfolio"
	"github.com/tbckr/lapse/internal/providers"
	"github.com/tbckr/lapse/internal/providers/whoiscli"
	"github.com/tbckr/lapse/internal/resolver"
)

// deps holds fully-resolved runtime dependencies for a subcommand.
type deps struct {
	logger *slog.Logger
	cfg    *config.Config
	format output.Format

	// whoisRunner replaces os/exec for the WHOIS CLI provider in tests.
	whoisRunner whoiscli.Runner

	store   cache.Store
	closers []func() error
}

// buildDeps resolves config, logger and output format.
func buildDeps(cmd *cobra.Command, stderr io.Writer) (*deps, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	return &deps{cfg: cfg, logger: logger, format: format}, nil
}

// close releases everything opened through d, in reverse order.
func (d *deps) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// newHTTPClient creates a new HTTP client configured with the proxy, user-agent,
// logger, and verbosity from the resolved config.
func (d *deps) newHTTPClient() (*req.Client, error) {
	client, err := httpclient.New(d.cfg.Proxy, d.cfg.UserAgent, d.logger, d.cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}
	return client, nil
}

// cacheStore opens the shared cache once per command.
func (d *deps) cacheStore(ctx context.Context) (cache.Store, error) {
	if d.store != nil {
		return d.store, nil
	}
	store, closeFn, err := cache.Open(ctx, d.cfg.Cache.Driver, d.cfg.Cache.RedisURL, d.logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	d.store = store
	d.closers = append(d.closers, closeFn)
	return store, nil
}

// newLookuper returns the DNS backend selected by dns.backend.
func (d *deps) newLookuper() (dnsrecord.Lookuper, error) {
	if d.cfg.DNS.Backend == "doh" {
		client, err := d.newHTTPClient()
		if err != nil {
			return nil, err
		}
		return dnsrecord.NewDoHLookuper(client, d.cfg.DNS.DoHURL), nil
	}
	r, err := resolver.NewResolver(d.cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("creating DNS resolver: %w", err)
	}
	return dnsrecord.NewSystemLookuper(r), nil
}

// newRecordResolver creates the retrying, caching record resolver.
func (d *deps) newRecordResolver(ctx context.Context) (*dnsrecord.Resolver, error) {
	lookuper, err := d.newLookuper()
	if err != nil {
		return nil, err
	}
	store, err := d.cacheStore(ctx)
	if err != nil {
		return nil, err
	}
	return dnsrecord.NewResolver(lookuper, store, d.logger,
		dnsrecord.WithRetries(d.cfg.DNS.Retries),
		dnsrecord.WithRetryDelay(d.cfg.DNS.RetryDelay),
		dnsrecord.WithCacheTTL(d.cfg.DNS.CacheTTL),
	), nil
}

// openPortfolio opens the state file named by state_file.
func (d *deps) openPortfolio() (*portfolio.FileStore, error) {
	store, err := portfolio.Open(d.cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("opening portfolio: %w", err)
	}
	return store, nil
}

// newMetrics registers the lapse metrics on a fresh registry.
func (d *deps) newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.New(reg), reg
}

// newCoordinator builds both provider chains and the coordinator around them.
// records may be nil for commands that only detect.
func (d *deps) newCoordinator(ctx context.Context, records expiry.Records, m *metrics.Metrics) (*expiry.Coordinator, error) {
	client, err := d.newHTTPClient()
	if err != nil {
		return nil, err
	}
	chains, err := providers.Build(d.cfg.ProviderSettings(), providers.Deps{
		HTTP:        client,
		Proxy:       d.cfg.Proxy,
		Logger:      d.logger,
		WhoisRunner: d.whoisRunner,
	})
	if err != nil {
		return nil, fmt.Errorf("building providers: %w", err)
	}
	store, err := d.cacheStore(ctx)
	if err != nil {
		return nil, err
	}
	backoff := expiry.NewBackoff(store, d.cfg.Expiry.BackoffTTL, d.logger)
	return expiry.NewCoordinator(d.cfg.ExpirySettings(), chains, backoff, records, d.logger, expiry.WithMetrics(m)), nil
}
