package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/miniclaw/miniclaw/internal/agent"
	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/spf13/cobra"
)

const cliChannel = "cli"

var (
	agentMessage   string
	agentSessionID string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with the agent directly in the terminal",
	Long:  "Send one message with -m, or start an interactive session without it. Slash commands such as /clear and /status work here too.",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Message to send to the agent")
	agentCmd.Flags().StringVarP(&agentSessionID, "session", "s", "default", "Conversation id (history key cli:<id>)")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if agentMessage != "" {
		reply := askAgent(ctx, rt.runner, agentSessionID, agentMessage)
		fmt.Fprintln(out, reply.Content)
		return nil
	}

	printHeader(out, "🤖 miniclaw agent")
	fmt.Fprintf(out, "Model: %s  Workspace: %s\n", rt.loop.Model(), rt.loop.Workspace())
	fmt.Fprintln(out, "Type /help for commands, exit or Ctrl-D to quit.")
	return repl(ctx, cmd.InOrStdin(), out, rt.runner, agentSessionID)
}

func askAgent(ctx context.Context, runner *agent.Runner, chatID, text string) agent.Reply {
	return runner.Handle(ctx, &bus.InboundMessage{
		Channel:   cliChannel,
		SenderID:  "local",
		ChatID:    chatID,
		Content:   text,
		Timestamp: time.Now(),
	})
}

// repl reads one message per line until EOF, "exit" or cancellation.
func repl(ctx context.Context, in io.Reader, out io.Writer, runner *agent.Runner, chatID string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	prompt := color.New(color.FgCyan, color.Bold).Sprint("you › ")
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		reply := askAgent(ctx, runner, chatID, line)
		if reply.Failed {
			fmt.Fprintln(out, color.RedString(reply.Content))
		} else {
			fmt.Fprintln(out, reply.Content)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
