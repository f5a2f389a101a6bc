package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/miniclaw/miniclaw/internal/timeline"
	"github.com/zalando/go-keyring"
)

func runRootCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	rootCmd.SetArgs(nil)
	agentMessage, agentSessionID = "", "default"
	return strings.TrimSpace(buf.String()), err
}

// testEnv points every path at a temp dir and the provider at a fake
// completion endpoint that answers with reply.
func testEnv(t *testing.T, reply string) (string, *int32) {
	t.Helper()
	dir := t.TempDir()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)

	t.Setenv("HOME", dir)
	t.Setenv("MINICLAW_HOME", dir)
	t.Setenv("MINICLAW_PROVIDER_BASE_URL", srv.URL)
	t.Setenv("MINICLAW_PROVIDER_API_KEY", "sk-test-1234")
	t.Setenv("MINICLAW_PATHS_WORKSPACE", filepath.Join(dir, "ws"))
	t.Setenv("MINICLAW_PATHS_SESSIONS", filepath.Join(dir, "sessions"))
	t.Setenv("MINICLAW_TIMELINE_DB_PATH", filepath.Join(dir, "timeline.db"))
	t.Setenv("MINICLAW_TRACE_ENABLED", "false")
	return dir, &calls
}

func TestVersionCommand(t *testing.T) {
	out, err := runRootCommand(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Fatalf("expected version in output, got %q", out)
	}
}

func TestToolsCommandListsDeclarations(t *testing.T) {
	out, err := runRootCommand(t, "", "tools")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	for _, want := range []string{"read_file(path)", "write_file(path, content)", "list_dir(path?)", "exec_shell(command)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestAgentOneShotPersistsSession(t *testing.T) {
	dir, calls := testEnv(t, "hello from the model")

	out, err := runRootCommand(t, "", "agent", "-m", "hi there", "-s", "work")
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	if !strings.Contains(out, "hello from the model") {
		t.Fatalf("expected model reply, got %q", out)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected one completion request, got %d", *calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions", "cli_work.json")); err != nil {
		t.Fatalf("expected session file: %v", err)
	}

	tl, err := timeline.NewTimelineService(filepath.Join(dir, "timeline.db"))
	if err != nil {
		t.Fatalf("open timeline: %v", err)
	}
	turns, err := tl.ListTurns(timeline.TurnFilter{SessionKey: "cli:work"})
	tl.Close()
	if err != nil || len(turns) != 1 {
		t.Fatalf("expected one recorded turn, got %d (%v)", len(turns), err)
	}
	if turns[0].DeliveryStatus != timeline.DeliverySkipped || turns[0].TotalTokens != 5 {
		t.Fatalf("unexpected turn record: %+v", turns[0])
	}

	out, err = runRootCommand(t, "", "sessions", "list")
	if err != nil || !strings.Contains(out, "cli:work") {
		t.Fatalf("expected session listed, got %q (%v)", out, err)
	}
	out, err = runRootCommand(t, "", "sessions", "show", "cli:work")
	if err != nil || !strings.Contains(out, "hi there") || !strings.Contains(out, "hello from the model") {
		t.Fatalf("unexpected history output %q (%v)", out, err)
	}
	out, err = runRootCommand(t, "", "sessions", "clear", "cli:work")
	if err != nil || !strings.Contains(out, "Cleared history") || !strings.Contains(out, "Removed 1 timeline turns") {
		t.Fatalf("unexpected clear output %q (%v)", out, err)
	}
}

func TestAgentREPLHandlesCommands(t *testing.T) {
	_, calls := testEnv(t, "pong")

	out, err := runRootCommand(t, "/help\nping\n/status\nexit\n", "agent")
	if err != nil {
		t.Fatalf("agent repl: %v", err)
	}
	if !strings.Contains(out, "/clear") || !strings.Contains(out, "pong") || !strings.Contains(out, "History: 2 messages") {
		t.Fatalf("unexpected REPL output:\n%s", out)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("commands must not reach the model, got %d requests", *calls)
	}
}

func TestAgentFailsOnInvalidConfig(t *testing.T) {
	testEnv(t, "unused")
	t.Setenv("MINICLAW_MODEL_MAX_ITERATIONS", "0")

	_, err := runRootCommand(t, "", "agent", "-m", "hi")
	if err == nil || !strings.Contains(err.Error(), "model.maxIterations") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	testEnv(t, "ok")
	if _, err := runRootCommand(t, "", "agent", "-m", "hi"); err != nil {
		t.Fatalf("agent: %v", err)
	}

	out, err := runRootCommand(t, "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Max iterations: 10", "****1234", "1 conversations, 2 messages", "Turns:     1 (completed 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in status output:\n%s", want, out)
		}
	}
}

func TestAuthKeyCommands(t *testing.T) {
	keyring.MockInit()

	out, err := runRootCommand(t, "sk-from-stdin-9876\n", "auth", "set-key")
	if err != nil || !strings.Contains(out, "9876") {
		t.Fatalf("set-key: %q (%v)", out, err)
	}
	if got, _ := keyring.Get("miniclaw", "api_key"); got != "sk-from-stdin-9876" {
		t.Fatalf("expected key in keyring, got %q", got)
	}
	if _, err := runRootCommand(t, "", "auth", "clear-key"); err != nil {
		t.Fatalf("clear-key: %v", err)
	}
	if _, err := keyring.Get("miniclaw", "api_key"); err == nil {
		t.Fatal("expected key removed")
	}
}
