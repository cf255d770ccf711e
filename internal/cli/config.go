package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/tbckr/lapse/internal/config"
	"github.com/tbckr/lapse/internal/output"
)

const maskedValue = "********"

func newConfigCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Read and write lapse config file values",
		GroupID: "utility",
	}
	cmd.AddCommand(
		newConfigPathCmd(d),
		newConfigShowCmd(d),
		newConfigGetCmd(d),
		newConfigSetCmd(d),
		newConfigEditCmd(d),
	)
	return cmd
}

func newConfigPathCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), d.cfg.ConfigFile)
			return err
		},
	}
}

// configRows is the effective configuration, one row per key. Values come
// from the fully resolved config (defaults, file, env vars and flags), so
// show displays effective state rather than just the file.
type configRows [][2]string

func buildConfigRows(d *deps) configRows {
	keys := config.ValidKeys()
	rows := make(configRows, 0, len(keys))
	for _, k := range keys {
		v, _ := d.cfg.Value(k)
		if config.IsSecret(k) && v != "" {
			v = maskedValue
		}
		rows = append(rows, [2]string{k, v})
	}
	return rows
}

// Header implements output.Tabular.
func (r configRows) Header() []string { return []string{"KEY", "VALUE"} }

// Rows implements output.Tabular.
func (r configRows) Rows() [][]string {
	out := make([][]string, len(r))
	for i, row := range r {
		out[i] = []string{row[0], row[1]}
	}
	return out
}

// MarshalJSON renders the rows as a flat key→value object.
func (r configRows) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(r))
	for _, row := range r {
		m[row[0]] = row[1]
	}
	return json.Marshal(m)
}

func newConfigShowCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Aliases: []string{"cat"},
		Short:   "Display all effective config settings",
		Long: `Display every config key with its effective value. Credentials are masked.
Plain output prints key=value lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			rows := buildConfigRows(d)
			if d.format == output.FormatPlain {
				for _, r := range rows {
					if _, err := fmt.Fprintf(w, "%s=%s\n", r[0], r[1]); err != nil {
						return err
					}
				}
				return nil
			}
			return writeResult(w, d, rows)
		},
	}
}

func newConfigGetCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a config key",
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := d.cfg.Value(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
}

func newConfigSetCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value and persist it to the config file",
		Long: `Set a single key in the config file. Only that key is written; other keys
already in the file are left untouched. Dotted keys such as
providers.whois_api.api_key are stored as nested YAML.`,
		Example: `  lapse config set dns.backend doh
  lapse config set providers.whois_api.api_key <key>
  lapse config set expiry.backoff_ttl 10m`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			switch len(args) {
			case 0:
				return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
			case 1:
				return config.KeyCompletions(args[0]), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(_ *cobra.Command, args []string) error {
			return config.SetFileValue(d.cfg.ConfigFile, args[0], args[1])
		},
	}
}

func newConfigEditCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the config file in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = os.Getenv("VISUAL")
			}
			if editor == "" {
				editor = "vi"
			}
			c := exec.CommandContext(cmd.Context(), editor, d.cfg.ConfigFile) //nolint:gosec // editor is sourced from user's $EDITOR/$VISUAL env var
			c.Stdin = cmd.InOrStdin()
			c.Stdout = cmd.OutOrStdout()
			c.Stderr = cmd.ErrOrStderr()
			return c.Run()
		},
	}
}
