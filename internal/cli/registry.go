package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"kwbot/internal/alert"
	"kwbot/internal/app"
	"kwbot/internal/config"
	"kwbot/internal/observability"
	"kwbot/internal/storage"
	logx "kwbot/pkg/logx"
)

// openRegistry opens the configured store for an admin command. The
// in-memory index is skipped; every call goes straight to storage.
func openRegistry(ctx context.Context, cfgPath string) (*alert.Engine, storage.Store, *config.Config, error) {
	cfg, err := config.ParseFile(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if err := config.Validate(cfg, false); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config:\n%w", err)
	}
	store, err := storage.Open(ctx, app.MapStorageConfig(cfg), logx.NewConsole("WARN"))
	if errors.Is(err, storage.ErrLocked) {
		return nil, nil, nil, fmt.Errorf("%w: the file driver cannot be shared, stop the bot or use the /kw commands", err)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return alert.NewEngine(store, store, alert.Options{}), store, cfg, nil
}

// notifyBot asks a running bot to reload its registries after a change.
// Without a reachable debug server the change is picked up at the bot's
// next scheduled resync.
func notifyBot(cmd *cobra.Command, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()
	err := observability.RequestResync(ctx, app.MapDebugConfig(cfg))
	switch {
	case err == nil:
		fmt.Fprintln(cmd.ErrOrStderr(), "running bot resynced")
	case errors.Is(err, observability.ErrServerDisabled):
		fmt.Fprintln(cmd.ErrOrStderr(), "note: a running bot applies this at its next resync (maintenance.resync)")
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "note: could not reach a running bot (%v); it applies this at its next resync\n", err)
	}
}

const adminLong = `Changes are written straight to the configured store.

A running bot serves alerts from its in-memory index. After a change the CLI
calls POST /resync on the bot's debug server when it is enabled; otherwise the
bot applies the change at its next scheduled resync (maintenance.resync).
The file driver is locked by the running bot and cannot be edited here while
it runs.`

func auditCLI(ctx context.Context, store storage.Store, action, target string, err error) {
	e := storage.AuditEntry{At: time.Now(), Action: "cli." + action, Target: target, OK: err == nil}
	if err != nil {
		e.Error = err.Error()
	}
	_ = store.AppendAudit(ctx, e)
}

func newKeywordsCmd(cfgPath *string) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:     "keywords",
		Aliases: []string{"kw"},
		Short:   "Manage keyword registrations in the configured store",
		Long:    adminLong,
	}
	cmd.PersistentFlags().Int64VarP(&userID, "user", "u", 0, "telegram user id")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <keyword...>",
		Short: "Register a keyword for --user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return errors.New("--user is required")
			}
			kw := alert.Normalize(strings.Join(args, " "))
			if kw == "" {
				return errors.New("keyword is empty after normalization")
			}
			eng, store, cfg, err := openRegistry(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()
			err = eng.Keywords().Add(cmd.Context(), userID, kw)
			auditCLI(cmd.Context(), store, "kw.add", kw, err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %q for %d\n", kw, userID)
			notifyBot(cmd, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <keyword...>",
		Short: "Remove every registration of a keyword for --user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return errors.New("--user is required")
			}
			kw := alert.Normalize(strings.Join(args, " "))
			eng, store, cfg, err := openRegistry(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()
			err = eng.Keywords().Remove(cmd.Context(), userID, kw)
			auditCLI(cmd.Context(), store, "kw.remove", kw, err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %q for %d\n", kw, userID)
			notifyBot(cmd, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keywords of --user, or every registration without --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, _, err := openRegistry(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			if userID != 0 {
				kws, err := eng.Keywords().List(cmd.Context(), userID)
				if err != nil {
					return err
				}
				for _, kw := range kws {
					fmt.Fprintln(tw, kw)
				}
				return nil
			}
			all, err := eng.Keywords().All(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "USER\tKEYWORD")
			for _, e := range all {
				fmt.Fprintf(tw, "%d\t%s\n", e.UserID, e.Keyword)
			}
			return nil
		},
	})
	return cmd
}

func newExclusionsCmd(cfgPath *string) *cobra.Command {
	var (
		userID   int64
		chatID   int64
		threadID int
	)
	cmd := &cobra.Command{
		Use:     "exclusions",
		Aliases: []string{"ex"},
		Short:   "Manage muted channels in the configured store",
		Long:    adminLong,
	}
	cmd.PersistentFlags().Int64VarP(&userID, "user", "u", 0, "telegram user id")
	cmd.PersistentFlags().Int64Var(&chatID, "chat", 0, "group chat id")
	cmd.PersistentFlags().IntVar(&threadID, "thread", 0, "forum topic id (0 = main chat)")

	mutate := func(add bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if userID == 0 || chatID == 0 {
				return errors.New("--user and --chat are required")
			}
			if threadID < 0 {
				return errors.New("--thread must be >= 0")
			}
			eng, store, cfg, err := openRegistry(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ch := alert.ChannelID{SpaceID: chatID, ThreadID: threadID}
			action, verb := "ex.add", "excluded"
			if add {
				err = eng.Exclusions().Add(cmd.Context(), userID, ch)
			} else {
				action, verb = "ex.remove", "unexcluded"
				err = eng.Exclusions().Remove(cmd.Context(), userID, ch)
			}
			auditCLI(cmd.Context(), store, action, ch.String(), err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %d\n", verb, ch, userID)
			notifyBot(cmd, cfg)
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Mute alerts for --user in --chat[/--thread]",
		Args:  cobra.NoArgs,
		RunE:  mutate(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Resume alerts for --user in --chat[/--thread]",
		Args:  cobra.NoArgs,
		RunE:  mutate(false),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List muted channels of --user, or all without --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, _, err := openRegistry(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			if userID != 0 {
				chs, err := eng.Exclusions().List(cmd.Context(), userID)
				if err != nil {
					return err
				}
				for _, ch := range chs {
					fmt.Fprintln(tw, ch)
				}
				return nil
			}
			all, err := eng.Exclusions().All(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "USER\tCHANNEL")
			for _, e := range all {
				fmt.Fprintf(tw, "%d\t%s\n", e.UserID, e.Channel)
			}
			return nil
		},
	})
	return cmd
}
