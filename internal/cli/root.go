package cli

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/miniclaw/miniclaw/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"            _       _      _\n" +
		"  _ __ ___ (_)_ __ (_) ___| | __ ___      __\n" +
		" | '_ ` _ \\| | '_ \\| |/ __| |/ _` \\ \\ /\\ / /\n" +
		" | | | | | | | | | | | (__| | (_| |\\ V  V /\n" +
		" |_| |_| |_|_|_| |_|_|\\___|_|\\__,_| \\_/\\_/\n"

	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "miniclaw",
	Short: "miniclaw - chat-driven workspace agent",
	Long:  color.CyanString(logo) + "\nA chat assistant that reads, writes and runs things in a local workspace.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debugEnabled())
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (or set MINICLAW_DEBUG=1)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(authCmd)
}

func debugEnabled() bool {
	if debug {
		return true
	}
	v, err := strconv.ParseBool(os.Getenv("MINICLAW_DEBUG"))
	return err == nil && v
}

// setupLogging installs a text handler on stderr.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
