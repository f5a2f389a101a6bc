package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultShellTimeout bounds exec_shell when no timeout is configured.
const DefaultShellTimeout = 30 * time.Second

// DefaultMaxOutput caps the length of a single tool result.
const DefaultMaxOutput = 100_000

// Executor runs tool calls against a workspace root. Execute never returns an
// error: every failure is rendered as result text for the model.
type Executor struct {
	Workspace    string
	ShellTimeout time.Duration
	// AllowPathEscape disables workspace confinement of path arguments.
	AllowPathEscape bool
	MaxOutput       int
	Denylist        []string
}

// NewExecutor creates an executor rooted at workspace.
func NewExecutor(workspace string, shellTimeout time.Duration) *Executor {
	if shellTimeout <= 0 {
		shellTimeout = DefaultShellTimeout
	}
	return &Executor{
		Workspace:    workspace,
		ShellTimeout: shellTimeout,
		MaxOutput:    DefaultMaxOutput,
		Denylist:     append([]string(nil), DenyList...),
	}
}

// Execute dispatches a tool call by name.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) string {
	kind, ok := ParseKind(name)
	if !ok {
		return fmt.Sprintf("❌ Unknown tool: %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	var result string
	switch kind {
	case KindReadFile:
		result = e.readFile(args)
	case KindWriteFile:
		result = e.writeFile(args)
	case KindListDir:
		result = e.listDir(args)
	case KindExecShell:
		result = e.execShell(ctx, args)
	}

	slog.Debug("Tool executed", "tool", name, "duration", time.Since(start))
	return e.truncate(result)
}

// truncate caps s at MaxOutput characters.
func (e *Executor) truncate(s string) string {
	limit := e.MaxOutput
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return fmt.Sprintf("%s\n... (output truncated, %d more chars)", string(runes[:limit]), len(runes)-limit)
}

func (e *Executor) root() string {
	root := e.Workspace
	if strings.HasPrefix(root, "~") {
		home, _ := os.UserHomeDir()
		root = filepath.Join(home, root[1:])
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return root
}

// errPathEscape is returned by resolve for paths outside the workspace.
type errPathEscape struct{ path string }

func (e errPathEscape) Error() string { return "path escapes workspace: " + e.path }

// resolve maps a tool path argument to an absolute path under the workspace.
func (e *Executor) resolve(p string) (string, error) {
	root := e.root()
	var full string
	if filepath.IsAbs(p) {
		full = filepath.Clean(p)
	} else {
		full = filepath.Join(root, p)
	}
	if !e.AllowPathEscape && !isWithin(root, full) {
		return "", errPathEscape{path: p}
	}
	return full, nil
}

// relative renders path relative to the workspace when possible.
func (e *Executor) relative(path string) string {
	rel, err := filepath.Rel(e.root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func isWithin(root, path string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".."
}

func missingArgument(name string) string {
	return fmt.Sprintf("❌ Missing required argument: %s", name)
}

func pathError(err error) string {
	if esc, ok := err.(errPathEscape); ok {
		return fmt.Sprintf("🚫 Path escapes workspace: %s", esc.path)
	}
	return fmt.Sprintf("❌ Invalid path: %v", err)
}
