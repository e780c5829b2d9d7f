// Package cli is the kwbot command tree.
package cli

import "github.com/spf13/cobra"

var (
	version = "dev"
	commit  = "none"
)

const defaultConfigPath = "./config.json"

func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "kwbot",
		Short:         "Telegram keyword alert bot",
		Long:          "kwbot watches group chats and privately alerts users whose registered keywords appear in a message.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to config file (json or yaml)")

	cmd.AddCommand(newRunCmd(&cfgPath))
	cmd.AddCommand(newConfigCmd(&cfgPath))
	cmd.AddCommand(newKeywordsCmd(&cfgPath))
	cmd.AddCommand(newExclusionsCmd(&cfgPath))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func Execute() error {
	return newRootCmd().Execute()
}
