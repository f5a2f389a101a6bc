package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolateEnv unsets the given variables for the duration of the test.
func isolateEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	isolateEnv(t,
		"MINICLAW_CONFIG", "MINICLAW_HOME", "MINICLAW_ENV_FILE",
		"TELEGRAM_TOKEN", "LLM_MODEL", "API_KEY", "BASE_URL", "CUSTOM_USER_AGENT",
		"MINICLAW_MODEL_NAME", "MINICLAW_MODEL_MAX_ITERATIONS", "MINICLAW_PROVIDER_API_KEY",
		"MINICLAW_PROVIDER_BASE_URL", "MINICLAW_TOOLS_SHELL_TIMEOUT", "MINICLAW_TRACE_BROKERS",
	)
	return home
}

func writeConfig(t *testing.T, home string, v any) string {
	t.Helper()
	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	var data []byte
	switch b := v.(type) {
	case string:
		data = []byte(b)
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal config: %v", err)
		}
	}
	path := filepath.Join(dir, ConfigFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	home := setupHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Name != "gpt-4o-mini" {
		t.Errorf("expected default model, got %s", cfg.Model.Name)
	}
	if cfg.Model.MaxIterations != 10 {
		t.Errorf("expected 10 iterations, got %d", cfg.Model.MaxIterations)
	}
	if cfg.Tools.ShellTimeout != 30*time.Second {
		t.Errorf("expected 30s shell timeout, got %v", cfg.Tools.ShellTimeout)
	}
	if want := filepath.Join(home, ".miniclaw", "workspace"); cfg.Paths.Workspace != want {
		t.Errorf("expected workspace %s, got %s", want, cfg.Paths.Workspace)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("telegram should be disabled without a token")
	}
}

func TestLoadFileThenEnvPriority(t *testing.T) {
	home := setupHome(t)
	writeConfig(t, home, map[string]any{
		"model":    map[string]any{"name": "file-model", "maxIterations": 4},
		"provider": map[string]any{"baseUrl": "https://file.example/v1"},
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Name != "file-model" || cfg.Model.MaxIterations != 4 {
		t.Errorf("file values not applied: %+v", cfg.Model)
	}
	if cfg.Model.Temperature != 0.7 {
		t.Errorf("default temperature lost: %v", cfg.Model.Temperature)
	}

	t.Setenv("LLM_MODEL", "legacy-model")
	t.Setenv("MINICLAW_PROVIDER_BASE_URL", "https://env.example/v1")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Name != "legacy-model" {
		t.Errorf("expected legacy env to override file, got %s", cfg.Model.Name)
	}
	if cfg.Provider.BaseURL != "https://env.example/v1" {
		t.Errorf("expected env base url, got %s", cfg.Provider.BaseURL)
	}

	t.Setenv("MINICLAW_MODEL_NAME", "prefixed-model")
	cfg, _ = Load()
	if cfg.Model.Name != "prefixed-model" {
		t.Errorf("expected prefixed env to win over legacy, got %s", cfg.Model.Name)
	}
}

func TestLoadLegacyBotVariables(t *testing.T) {
	setupHome(t)
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("API_KEY", "sk-legacy")
	t.Setenv("CUSTOM_USER_AGENT", "bot/2.0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "123:abc" {
		t.Errorf("telegram not configured from TELEGRAM_TOKEN: %+v", cfg.Channels.Telegram)
	}
	if cfg.Provider.APIKey != "sk-legacy" || cfg.Provider.UserAgent != "bot/2.0" {
		t.Errorf("provider not configured from legacy env: %+v", cfg.Provider)
	}
}

func TestLoadEnvDurationsAndLists(t *testing.T) {
	setupHome(t)
	t.Setenv("MINICLAW_TOOLS_SHELL_TIMEOUT", "5s")
	t.Setenv("MINICLAW_TRACE_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Tools.ShellTimeout != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.Tools.ShellTimeout)
	}
	if len(cfg.Trace.Brokers) != 2 || cfg.Trace.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Trace.Brokers)
	}
}

func TestLoadInvalidJSONReturnsError(t *testing.T) {
	home := setupHome(t)
	writeConfig(t, home, `{"model":`)

	if _, err := Load(); err == nil {
		t.Fatal("expected JSON error, got nil")
	}
}

func TestLoadIncludeAndSubstitution(t *testing.T) {
	home := setupHome(t)
	dir := filepath.Join(home, ConfigDir)
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "base.json"), []byte(`{"model":{"name":"base-model","maxIterations":3}}`), 0o600)
	writeConfig(t, home, `{"$include":"base.json","provider":{"apiKey":"${TEST_MINICLAW_KEY}"},"model":{"name":"top-model"}}`)
	t.Setenv("TEST_MINICLAW_KEY", "sk-sub")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Name != "top-model" || cfg.Model.MaxIterations != 3 {
		t.Errorf("include merge wrong: %+v", cfg.Model)
	}
	if cfg.Provider.APIKey != "sk-sub" {
		t.Errorf("expected substituted key, got %q", cfg.Provider.APIKey)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	home := setupHome(t)
	writeConfig(t, home, `{"$include":"config.json"}`)
	if _, err := Load(); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestSubstituteEnvValuesLeavesUnknownToken(t *testing.T) {
	isolateEnv(t, "NOT_SET_VAR")
	out := substituteEnvValues(map[string]any{"value": "${NOT_SET_VAR}"}).(map[string]any)
	if out["value"] != "${NOT_SET_VAR}" {
		t.Fatalf("expected unknown env token unchanged, got %v", out["value"])
	}
}

func TestConfigPathRespectsEnv(t *testing.T) {
	setupHome(t)
	t.Setenv("MINICLAW_HOME", "/srv/mini")
	t.Setenv("MINICLAW_CONFIG", "~/.miniclaw/custom.json")

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join("/srv/mini", ".miniclaw", "custom.json") {
		t.Fatalf("unexpected config path: %q", path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	setupHome(t)

	cfg := DefaultConfig()
	cfg.Model.Name = "saved-model"
	if err := Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	path, _ := ConfigPath()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("saved config file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.Model.Name != "saved-model" {
		t.Errorf("expected saved model, got %s", loaded.Model.Name)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Model.MaxIterations = 0
	cfg.Channels.Telegram.Enabled = true
	cfg.Trace.Enabled = true
	cfg.Trace.SecurityProtocol = "SASL_SSL"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	for _, field := range []string{"model.maxIterations", "channels.telegram.token", "trace.brokers", "trace.saslMechanism"} {
		if !containsField(err, field) {
			t.Errorf("expected error for %s in %v", field, err)
		}
	}
}

func containsField(err error, field string) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return false
	}
	for _, e := range joined.Unwrap() {
		var ce *ConfigurationError
		if errors.As(e, &ce) && ce.Field == field {
			return true
		}
	}
	return false
}
