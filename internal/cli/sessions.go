package cli

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/miniclaw/miniclaw/internal/config"
	"github.com/miniclaw/miniclaw/internal/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and clear stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openSessions()
		if err != nil {
			return err
		}
		infos := store.List()
		out := cmd.OutOrStdout()
		if len(infos) == 0 {
			fmt.Fprintln(out, "No stored conversations.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tMESSAGES\tUPDATED")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Messages, info.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print the history of a conversation (e.g. telegram:42)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openSessions()
		if err != nil {
			return err
		}
		msgs := store.Load(args[0])
		out := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintf(out, "No history for %s\n", args[0])
			return nil
		}
		for _, m := range msgs {
			role := color.CyanString(m.Role)
			if m.Role == "assistant" {
				role = color.GreenString(m.Role)
			}
			fmt.Fprintf(out, "%s: %s\n\n", role, m.Content)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <key>",
	Short: "Delete the history of a conversation and its timeline turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openSessions()
		if err != nil {
			return err
		}
		key := args[0]
		existed, err := store.Delete(key)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if existed {
			fmt.Fprintf(out, "Cleared history for %s\n", key)
		} else {
			fmt.Fprintf(out, "No history for %s\n", key)
		}

		if cfg.Timeline.Enabled {
			tl, err := openTimeline(cfg)
			if err != nil {
				slog.Warn("Timeline unavailable", "error", err)
				return nil
			}
			defer tl.Close()
			n, err := tl.DeleteSessionTurns(key)
			if err != nil {
				return fmt.Errorf("delete timeline turns: %w", err)
			}
			if n > 0 {
				fmt.Fprintf(out, "Removed %d timeline turns\n", n)
			}
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsClearCmd)
}

func openSessions() (*session.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := session.NewStore(cfg.Paths.Sessions)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
