package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kwbot/internal/config"
)

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Parse and validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ParseFile(*cfgPath)
			if err != nil {
				return fmt.Errorf("parse %s: %w", *cfgPath, err)
			}
			if err := config.Validate(cfg, true); err != nil {
				return fmt.Errorf("invalid config:\n%w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %s\n", *cfgPath)
			fmt.Fprintf(out, "  storage:     %s\n", cfg.Storage.Driver)
			fmt.Fprintf(out, "  owners:      %d\n", len(cfg.Telegram.OwnerUserIDs))
			fmt.Fprintf(out, "  cache:       %t\n", cfg.CacheEnabled())
			fmt.Fprintf(out, "  maintenance: %t\n", cfg.Maintenance.Enabled)
			if cfg.DebugServer.Enabled {
				fmt.Fprintf(out, "  debug:       %s\n", cfg.DebugServer.Addr)
			}
			if len(cfg.Telegram.AllowedChats) > 0 {
				ids := make([]string, 0, len(cfg.Telegram.AllowedChats))
				for _, id := range cfg.Telegram.AllowedChats {
					ids = append(ids, fmt.Sprint(id))
				}
				fmt.Fprintf(out, "  chats:       %s\n", strings.Join(ids, ","))
			}
			return nil
		},
	})
	return cmd
}
