package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/dnsrecord"
	"github.com/tbckr/lapse/internal/report"
	"github.com/tbckr/lapse/internal/validate"
)

func newDNSCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "dns <txt|a|aaaa|mx> <name>",
		Short: "Resolve TXT, A, AAAA or MX records",
		Long: `Resolve DNS records through the record resolver used for verification
checks. Lookups are retried dns.retries times and cached for dns.cache_ttl.
A name that does not exist resolves to an empty list.

The backend is the system resolver (through a SOCKS5 --proxy if set) or
DNS-over-HTTPS when dns.backend is "doh".`,
		Example: `  lapse dns txt example.com
  lapse dns mx example.com -o json
  LAPSE_DNS_BACKEND=doh lapse dns aaaa example.com`,
		GroupID: "utility",
		Args:    cobra.ExactArgs(2),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return []string{"txt", "a", "aaaa", "mx"}, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := dnsrecord.ParseRecordType(args[0])
			if err != nil {
				return err
			}
			name := validate.NormalizeDomain(args[1])
			if !validate.IsDomain(name) {
				return fmt.Errorf("%w: %q is not a valid domain name", apperr.ErrInvalidInput, args[1])
			}
			r, err := d.newRecordResolver(cmd.Context())
			if err != nil {
				return err
			}
			records := r.Resolve(cmd.Context(), rt, name)
			return writeResult(cmd.OutOrStdout(), d, &report.Records{
				Type:    string(rt),
				Name:    name,
				Records: records,
			})
		},
	}
}
