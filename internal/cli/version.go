package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbckr/lapse/internal/output"
	"github.com/tbckr/lapse/internal/version"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func newVersionCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print the lapse version",
		Args:    cobra.NoArgs,
		GroupID: "utility",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{Version: version.Version, Commit: version.Commit, Date: version.Date}
			if d.format == output.FormatJSON {
				return writeResult(cmd.OutOrStdout(), d, info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(),
				"lapse version %s (commit: %s, built: %s)\n",
				info.Version, info.Commit, info.Date)
			return err
		},
	}
}
