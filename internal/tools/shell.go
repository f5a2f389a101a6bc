package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DenyList holds literal substrings that make a command refuse to run.
// It is a best-effort guard against obvious accidents, not a sandbox.
var DenyList = []string{
	"rm -rf /",
	"mkfs",
	"dd if=",
	"> /dev/",
}

func (e *Executor) execShell(ctx context.Context, args map[string]any) string {
	command, ok := requireString(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return missingArgument("command")
	}

	if pattern, denied := e.denied(command); denied {
		return fmt.Sprintf("🚫 Refusing to run dangerous command: %s (matched %q)", command, pattern)
	}

	timeout := e.ShellTimeout
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.root()
	// Without WaitDelay a grandchild holding the pipes keeps Run blocked past
	// the deadline.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("❌ Command timed out after %v", timeout)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Sprintf("❌ Error executing command: %v", err)
		}
		exitCode = exitErr.ExitCode()
	}

	output := stdout.String()
	if strings.TrimSpace(output) == "" {
		output = stderr.String()
	}
	if strings.TrimSpace(output) == "" {
		return fmt.Sprintf("💻 Command finished (exit code %d)", exitCode)
	}
	return "💻 Shell output:\n" + output
}

func (e *Executor) denied(command string) (string, bool) {
	for _, pattern := range e.Denylist {
		if strings.Contains(command, pattern) {
			return pattern, true
		}
	}
	return "", false
}
