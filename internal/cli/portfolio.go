package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/report"
)

func newAddCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "add [domain...]",
		Short: "Add domains to the monitored portfolio",
		Long: `Add domains to the portfolio kept in state_file. Names are normalized
(lowercased, trailing dot removed) and the normalized name becomes the domain ID.
Adding a domain that is already monitored is an error.

Domains are read from stdin, one per line, when no argument is given.`,
		Example: `  lapse add example.com
  cat domains.txt | lapse add`,
		GroupID: "portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := resolveInputs(cmd, args)
			if err != nil {
				return err
			}
			store, err := d.openPortfolio()
			if err != nil {
				return err
			}
			added := make([]model.Domain, 0, len(inputs))
			for _, name := range inputs {
				dom, err := store.AddDomain(cmd.Context(), name)
				if err != nil {
					return err
				}
				d.logger.Info("domain added", "domain", dom.Name, "state_file", store.Path())
				added = append(added, *dom)
			}
			return writeResult(cmd.OutOrStdout(), d, report.NewPortfolio(added, time.Now()))
		},
	}
}

func newListCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List monitored domains and their stored expiry dates",
		GroupID: "portfolio",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := d.openPortfolio()
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), d, report.NewPortfolio(store.Domains(cmd.Context()), time.Now()))
		},
	}
}

func newIncidentsCmd(d *deps) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List expiry incidents",
		Long: `List open expiry incidents. Incidents are closed automatically by
"lapse check" once a fresh expiry date more than 30 days out is stored for
the incident's domain and category.`,
		GroupID: "portfolio",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := d.openPortfolio()
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), d, &report.Incidents{Incidents: store.Incidents(cmd.Context(), !all)})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include resolved incidents")
	cmd.AddCommand(newIncidentOpenCmd(d), newIncidentResolveCmd(d))
	return cmd
}

func newIncidentOpenCmd(d *deps) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "open <domain> <domain|ssl>",
		Short: "Open an incident against a monitored domain",
		Args:  cobra.ExactArgs(2),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return []string{model.CheckDomain.String(), model.CheckSSL.String()}, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := model.ParseCheckType(args[1])
			if err != nil {
				return err
			}
			store, err := d.openPortfolio()
			if err != nil {
				return err
			}
			inc, err := store.OpenIncident(cmd.Context(), args[0], category, note)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), d, &report.Incidents{Incidents: []model.Incident{*inc}})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "free-form note stored with the incident")
	return cmd
}

func newIncidentResolveCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <incident-id>",
		Short: "Resolve an incident by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := d.openPortfolio()
			if err != nil {
				return err
			}
			if err := store.ResolveIncident(cmd.Context(), args[0], time.Now()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", args[0])
			return err
		},
	}
}
