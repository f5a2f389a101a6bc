package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/miniclaw/miniclaw/internal/provider/credentials"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the LLM API key in the OS keyring",
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key [key]",
	Short: "Store the API key (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			fmt.Fprint(cmd.OutOrStdout(), "API key: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			key = line
		}
		key = strings.TrimSpace(key)
		if err := credentials.SaveAPIKey(key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored API key %s\n", credentials.Mask(key))
		return nil
	},
}

var authClearKeyCmd = &cobra.Command{
	Use:   "clear-key",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.DeleteAPIKey(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key removed")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authSetKeyCmd, authClearKeyCmd)
}
