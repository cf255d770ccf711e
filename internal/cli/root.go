// Package cli provides the Cobra command tree and output wiring for lapse.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tbckr/lapse/internal/config"
	"github.com/tbckr/lapse/internal/output"
	"github.com/tbckr/lapse/internal/version"
	"github.com/tbckr/lapse/internal/worker"
)

// newRootCmd builds the top-level Cobra command for lapse.
// Callers must set stdout/stderr via cmd.SetOut / cmd.SetErr before Execute
// and call d.close afterwards.
//
// d is populated by PersistentPreRunE before any subcommand's RunE runs.
// Cobra only executes the innermost PersistentPreRunE in the command chain;
// completion is the only subcommand allowed to override it.
func newRootCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lapse",
		Short: "lapse watches domain registration and TLS certificate expiry",
		Long: `lapse finds out when a domain registration or its TLS certificate expires.

Registration expiry is looked up through registry RDAP, an RDAP aggregator,
an optional WHOIS API, raw WHOIS and the local whois binary, in that order.
Certificate expiry comes from a TLS handshake, falling back to certificate
transparency logs. Failing sources are skipped for a while per domain.

Domains added with "lapse add" form a portfolio that "lapse check" and
"lapse watch" keep up to date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := buildDeps(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			resolved.whoisRunner = d.whoisRunner
			*d = *resolved
			return nil
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())
	config.RegisterFlagCompletions(cmd)

	cmd.Version = version.String()
	cmd.SetVersionTemplate("lapse version {{.Version}}\n")

	cmd.AddGroup(
		&cobra.Group{ID: "expiry", Title: "Expiry Checks:"},
		&cobra.Group{ID: "portfolio", Title: "Portfolio:"},
		&cobra.Group{ID: "utility", Title: "Utility Commands:"},
	)

	cmd.AddCommand(
		newDomainCmd(d),
		newSSLCmd(d),
		newDNSCmd(d),
		newAddCmd(d),
		newListCmd(d),
		newCheckCmd(d),
		newIncidentsCmd(d),
		newWatchCmd(d),
		newConfigCmd(d),
		newCompletionCmd(),
		newVersionCmd(d),
	)

	return cmd
}

// Run builds the root command and executes it with args.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	d := &deps{}
	defer func() {
		if cerr := d.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	cmd := newRootCmd(d)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// resolveInputs returns positional args, or reads non-empty lines from stdin when
// no args are provided. Returns an error if stdin is an interactive terminal with
// no args (i.e. the user forgot to pass an argument or pipe input).
func resolveInputs(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	r := cmd.InOrStdin()
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // uintptr→int is safe for file descriptors; they fit in int on all supported platforms
		return nil, fmt.Errorf("no input: pass a domain or pipe one per line on stdin")
	}
	return worker.ReadInputs(r)
}

// writeResult formats and writes a result to stdout.
func writeResult(stdout io.Writer, d *deps, result any) error {
	if err := output.Write(stdout, d.format, result); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
