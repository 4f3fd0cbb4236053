package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for trainset.

To load completions:

Bash:
  $ source <(trainset completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ trainset completion bash > /etc/bash_completion.d/trainset
  # macOS:
  $ trainset completion bash > $(brew --prefix)/etc/bash_completion.d/trainset

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ trainset completion zsh > "${fpath[1]}/_trainset"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ trainset completion fish | source

  # To load completions for each session, execute once:
  $ trainset completion fish > ~/.config/fish/completions/trainset.fish

PowerShell:
  PS> trainset completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> trainset completion powershell > trainset.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	return cmd
}
