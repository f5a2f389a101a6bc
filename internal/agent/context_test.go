package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/miniclaw/miniclaw/internal/provider"
)

func TestContextBuilder(t *testing.T) {
	tmpDir := t.TempDir()
	builder := NewContextBuilder(tmpDir)
	builder.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC) }

	prompt := builder.BuildSystemPrompt()
	for _, want := range []string{
		tmpDir,
		"2026-01-02 15:04",
		"read_file", "write_file", "list_dir", "exec_shell",
		`\\`, `\n`, `\"`,
		"rm -rf /",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	msgs := builder.BuildMessages([]provider.Message{{Role: provider.RoleUser, Content: "old"}}, "new")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != provider.RoleSystem || msgs[1].Content != "old" || msgs[2].Content != "new" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}
