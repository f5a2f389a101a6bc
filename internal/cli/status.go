package cli

import (
	"fmt"
	"os"

	"github.com/miniclaw/miniclaw/internal/config"
	"github.com/miniclaw/miniclaw/internal/provider"
	"github.com/miniclaw/miniclaw/internal/provider/credentials"
	"github.com/miniclaw/miniclaw/internal/session"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "miniclaw %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, credentials and conversation stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printHeader(out, "📊 miniclaw status")
		fmt.Fprintf(out, "Version:   %s\n", version)

		if path, err := config.ConfigPath(); err == nil {
			_, statErr := os.Stat(path)
			fmt.Fprintf(out, "Config:    %s %s\n", check(statErr == nil), path)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(out, "Valid:     %s %v\n", check(false), err)
		} else {
			fmt.Fprintf(out, "Valid:     %s\n", check(true))
		}

		route := provider.ResolveRoute(cfg.Model.Name, cfg.Provider.BaseURL)
		fmt.Fprintf(out, "Model:     %s (%s)\n", route.Model, route.Provider)
		fmt.Fprintf(out, "Endpoint:  %s\n", route.BaseURL)
		fmt.Fprintf(out, "API key:   %s\n", apiKeyStatus(cfg))
		fmt.Fprintf(out, "Workspace: %s\n", cfg.Paths.Workspace)
		fmt.Fprintf(out, "Max iterations: %d\n", cfg.Model.MaxIterations)

		if store, err := session.NewStore(cfg.Paths.Sessions); err == nil {
			infos := store.List()
			total := 0
			for _, info := range infos {
				total += info.Messages
			}
			fmt.Fprintf(out, "Sessions:  %d conversations, %d messages\n", len(infos), total)
		}

		fmt.Fprintf(out, "Telegram:  %s\n", check(cfg.Channels.Telegram.Enabled))
		fmt.Fprintf(out, "Slack:     %s\n", check(cfg.Channels.Slack.Enabled))
		fmt.Fprintf(out, "WhatsApp:  %s\n", check(cfg.Channels.WhatsApp.Enabled))
		if cfg.Channels.WhatsApp.Enabled {
			if _, err := os.Stat(cfg.Channels.WhatsApp.StorePath); err == nil {
				fmt.Fprintln(out, "WhatsApp link: session found (no QR needed)")
			} else {
				fmt.Fprintf(out, "WhatsApp link: no session, QR will be written to %s\n", cfg.Channels.WhatsApp.QRPath)
			}
		}

		if cfg.Timeline.Enabled {
			if _, err := os.Stat(cfg.Timeline.DBPath); err == nil {
				tl, err := openTimeline(cfg)
				if err == nil {
					defer tl.Close()
					if sum, err := tl.Summarize(); err == nil {
						fmt.Fprintf(out, "Turns:     %d (completed %d, failed %d, exhausted %d)\n",
							sum.Turns, sum.Completed, sum.Failed, sum.Exhausted)
						fmt.Fprintf(out, "Delivery:  %d pending, %d failed\n", sum.PendingDelivery, sum.FailedDelivery)
						fmt.Fprintf(out, "Usage:     %d tokens, %d completions, %d tool calls\n",
							sum.TotalTokens, sum.CompletionCalls, sum.ToolCalls)
					}
				}
			}
		}
		fmt.Fprintf(out, "Trace:     %s %s\n", check(cfg.Trace.Enabled), cfg.Trace.Topic)
		return nil
	},
}

func apiKeyStatus(cfg *config.Config) string {
	if cfg.Provider.APIKey != "" {
		return check(true) + " config " + credentials.Mask(cfg.Provider.APIKey)
	}
	if key, err := credentials.LoadAPIKey(); err == nil {
		return check(true) + " keyring " + credentials.Mask(key)
	}
	return check(false) + " not set"
}
