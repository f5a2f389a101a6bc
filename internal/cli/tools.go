package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/miniclaw/miniclaw/internal/mcpserver"
	"github.com/miniclaw/miniclaw/internal/tools"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, decl := range tools.Declarations() {
			params := make([]string, 0, len(decl.Parameters))
			for _, p := range decl.Parameters {
				name := p.Name
				if !p.Required {
					name += "?"
				}
				params = append(params, name)
			}
			fmt.Fprintf(out, "%s(%s)\n    %s\n", color.CyanString(decl.Name()), strings.Join(params, ", "), decl.Description)
		}
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the workspace tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}
		return mcpserver.New(exec, "miniclaw", version).ServeStdio(cmd.Context())
	},
}
