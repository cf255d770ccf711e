package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/report"
	"github.com/tbckr/lapse/internal/validate"
	"github.com/tbckr/lapse/internal/worker"
)

func newDomainCmd(d *deps) *cobra.Command {
	return newDetectCmd(d, model.CheckDomain, &cobra.Command{
		Use:   "domain [domain...]",
		Short: "Look up when domain registrations expire",
		Long: `Look up when domain registrations expire.

Sources are tried in order: registry RDAP, RDAP aggregator, WHOIS API (when an
API key is configured), raw WHOIS and the whois binary. The first source that
returns an expiry date wins. With --fast only the first
expiry.fast_path_domain sources are tried.

Domains are read from stdin, one per line, when no argument is given.`,
		Example: `  lapse domain example.com
  lapse domain --fast example.com example.org
  cat domains.txt | lapse domain -o json`,
	})
}

func newSSLCmd(d *deps) *cobra.Command {
	return newDetectCmd(d, model.CheckSSL, &cobra.Command{
		Use:   "ssl [domain...]",
		Short: "Look up when TLS certificates expire",
		Long: `Look up when the TLS certificate served for a domain expires.

A TLS handshake on providers.tls.port is tried first; certificate transparency
logs are the fallback. With --fast only the first expiry.fast_path_ssl
sources are tried.

Domains are read from stdin, one per line, when no argument is given.`,
		Example: `  lapse ssl example.com
  lapse ssl -o plain example.com www.example.com`,
	})
}

// newDetectCmd wires the shared detection flow into cmd for checkType.
func newDetectCmd(d *deps, checkType model.CheckType, cmd *cobra.Command) *cobra.Command {
	var fast bool
	cmd.GroupID = "expiry"
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		inputs, err := resolveInputs(cmd, args)
		if err != nil {
			return err
		}
		coord, err := d.newCoordinator(cmd.Context(), nil, nil)
		if err != nil {
			return err
		}
		result := detectAll(cmd.Context(), coord, checkType, inputs, fast, d.cfg.Concurrency)
		return writeResult(cmd.OutOrStdout(), d, result)
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "only try the fastest sources")
	return cmd
}

// detectAll runs detection for every input in parallel and keeps input order.
func detectAll(ctx context.Context, coord *expiry.Coordinator, checkType model.CheckType, inputs []string, fast bool, concurrency int) *report.Detection {
	results := worker.Run(ctx, inputs, concurrency, func(ctx context.Context, name string) (*expiry.Result, error) {
		normalized := validate.NormalizeDomain(name)
		if !validate.IsDomain(normalized) {
			return nil, fmt.Errorf("%w: %q is not a valid domain name", apperr.ErrInvalidInput, name)
		}
		subject := &model.Domain{ID: normalized, Name: normalized}
		return coord.Detect(ctx, subject, checkType, fast), nil
	})

	out := report.NewDetection(checkType, time.Now())
	for _, r := range results {
		out.Add(r.Input, r.Output, r.Err)
	}
	return out
}
