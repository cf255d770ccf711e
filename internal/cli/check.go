package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/metrics"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/portfolio"
	"github.com/tbckr/lapse/internal/report"
	"github.com/tbckr/lapse/internal/scan"
	"github.com/tbckr/lapse/internal/server"
)

func newCheckCmd(d *deps) *cobra.Command {
	var fast bool
	cmd := &cobra.Command{
		Use:   "check [domain...]",
		Short: "Check the portfolio and update stored expiry dates",
		Long: `Run registration and certificate detection for every monitored domain
(or only the named ones), store fresh expiry dates and close incidents whose
expiry moved more than 30 days out.

A stored date is replaced only when it is missing or the new date is later.
With expiry.allow_overwrite set, any change in either direction is stored.`,
		Example: `  lapse check
  lapse check --fast example.com`,
		GroupID: "portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := d.openPortfolio()
			if err != nil {
				return err
			}
			domains, err := selectDomains(cmd.Context(), store, args)
			if err != nil {
				return err
			}
			scanner, err := d.newScanner(cmd.Context(), store, nil)
			if err != nil {
				return err
			}
			outcomes := scanner.Scan(cmd.Context(), domains, fast)
			return writeResult(cmd.OutOrStdout(), d, report.NewScan(outcomes, time.Now()))
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "only try the fastest sources")
	return cmd
}

func newWatchCmd(d *deps) *cobra.Command {
	var (
		fast     bool
		listen   string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check the portfolio periodically and serve metrics",
		Long: `Run "lapse check" every watch.interval until interrupted, and serve
Prometheus metrics on /metrics and a JSON health probe on /healthz at
watch.listen.

Exported metrics:
  lapse_provider_attempts_total{check,provider,outcome}
  lapse_provider_latency_seconds{check,provider}
  lapse_provider_backoffs_total{check,provider}
  lapse_expiry_days_left{domain,check}`,
		GroupID: "portfolio",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = d.cfg.Watch.Listen
			}
			if !cmd.Flags().Changed("interval") {
				interval = d.cfg.Watch.Interval
			}
			if interval <= 0 {
				return fmt.Errorf("%w: watch interval must be positive, got %s", apperr.ErrInvalidInput, interval)
			}

			store, err := d.openPortfolio()
			if err != nil {
				return err
			}
			m, reg := d.newMetrics()
			scanner, err := d.newScanner(cmd.Context(), store, m)
			if err != nil {
				return err
			}
			status := &server.Status{}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return server.Serve(ctx, listen, server.NewRouter(reg, status, d.logger), d.logger)
			})
			g.Go(func() error {
				return watchLoop(ctx, interval, func(ctx context.Context) {
					outcomes := scanner.Scan(ctx, store.Domains(ctx), fast)
					var failed int
					for _, o := range outcomes {
						if o.Err != nil {
							failed++
						}
					}
					status.Record(time.Now(), len(outcomes), failed)
				})
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "only try the fastest sources")
	cmd.Flags().StringVar(&listen, "listen", "", "metrics listen address (default: watch.listen)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between checks (default: watch.interval)")
	return cmd
}

// watchLoop runs fn immediately and then every interval until ctx is done.
func watchLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// newScanner wires a coordinator writing through store into a Scanner.
func (d *deps) newScanner(ctx context.Context, store *portfolio.FileStore, m *metrics.Metrics) (*scan.Scanner, error) {
	coord, err := d.newCoordinator(ctx, store, m)
	if err != nil {
		return nil, err
	}
	return scan.New(coord, d.cfg.Concurrency, d.logger, scan.WithMetrics(m)), nil
}

// selectDomains returns the named portfolio domains, or all of them.
func selectDomains(ctx context.Context, store *portfolio.FileStore, names []string) ([]model.Domain, error) {
	if len(names) == 0 {
		return store.Domains(ctx), nil
	}
	out := make([]model.Domain, 0, len(names))
	for _, name := range names {
		dom, err := store.Domain(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, *dom)
	}
	return out, nil
}
