package cli

import (
	"io"

	"github.com/spf13/cobra"
)

type shellCompletion struct {
	shell string
	setup string
	gen   func(root *cobra.Command, w io.Writer) error
}

var shellCompletions = []shellCompletion{
	{
		shell: "bash",
		setup: `Requires the bash-completion package.

  $ source <(lapse completion bash)
  $ lapse completion bash > /etc/bash_completion.d/lapse`,
		gen: func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	},
	{
		shell: "zsh",
		setup: `Enable completion once with: echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ source <(lapse completion zsh)
  $ lapse completion zsh > "${fpath[1]}/_lapse"`,
		gen: func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	},
	{
		shell: "fish",
		setup: `  $ lapse completion fish | source
  $ lapse completion fish > ~/.config/fish/completions/lapse.fish`,
		gen: func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	},
	{
		shell: "powershell",
		setup: `  PS> lapse completion powershell | Out-String | Invoke-Expression

Add the output to your PowerShell profile to load it in every session.`,
		gen: func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
	},
}

func newCompletionCmd() *cobra.Command {
	completion := &cobra.Command{
		Use:     "completion [bash|zsh|fish|powershell]",
		Short:   "Generate shell completion scripts",
		Long:    "Generate shell completion scripts for lapse. Start a new shell after installing one.",
		GroupID: "utility",
		// buildDeps creates the config file, which tab-completion must not do.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return nil
		},
	}
	for _, sc := range shellCompletions {
		completion.AddCommand(&cobra.Command{
			Use:                   sc.shell,
			Short:                 "Generate " + sc.shell + " completion script",
			Long:                  "Generate the completion script for " + sc.shell + ".\n\n" + sc.setup,
			Args:                  cobra.NoArgs,
			DisableFlagsInUseLine: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return sc.gen(cmd.Root(), cmd.OutOrStdout())
			},
		})
	}
	return completion
}
