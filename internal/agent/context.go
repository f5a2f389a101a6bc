package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/miniclaw/miniclaw/internal/provider"
	"github.com/miniclaw/miniclaw/internal/tools"
)

// ContextBuilder assembles the system prompt and the working transcript.
type ContextBuilder struct {
	workspace string
	now       func() time.Time
}

// NewContextBuilder creates a new ContextBuilder.
func NewContextBuilder(workspace string) *ContextBuilder {
	return &ContextBuilder{workspace: workspace, now: time.Now}
}

// BuildSystemPrompt describes the workspace, the available tools and the
// rules the model must follow when calling them.
func (b *ContextBuilder) BuildSystemPrompt() string {
	ws := b.workspace
	if strings.HasPrefix(ws, "~") {
		home, _ := os.UserHomeDir()
		ws = filepath.Join(home, ws[1:])
	}
	if abs, err := filepath.Abs(ws); err == nil {
		ws = abs
	}

	var sb strings.Builder
	sb.WriteString("# miniclaw\n\n")
	sb.WriteString("You are miniclaw, an assistant that completes tasks by calling local tools inside a workspace directory.\n\n")
	fmt.Fprintf(&sb, "## Runtime\n- Time: %s\n- Workspace: %s\n\n", b.now().Format("2006-01-02 15:04 (Monday)"), ws)

	sb.WriteString("## Tools\n")
	for _, d := range tools.Declarations() {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name(), d.Description)
	}

	sb.WriteString(`
## Rules
1. Paths are relative to the workspace root. Do not try to leave it.
2. Inspect before you change: list or read files before overwriting them.
3. Tool arguments are JSON. Escape special characters inside strings: write a backslash as \\, a newline as \n and a double quote as \".
4. Never run destructive commands (rm -rf /, mkfs, dd if=, writing to /dev). They are refused.
5. When the task is done, answer in plain text without calling more tools.

Shell commands run with the workspace as working directory and a time limit. Long-running or interactive programs will be stopped.`)
	return sb.String()
}

// BuildMessages seeds a transcript: system prompt, prior history, then the
// new user message.
func (b *ContextBuilder) BuildMessages(history []provider.Message, userMessage string) []provider.Message {
	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: b.BuildSystemPrompt()})
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: userMessage})
	return messages
}
