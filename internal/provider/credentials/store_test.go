package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestAPIKeyRoundTrip(t *testing.T) {
	keyring.MockInit()

	if _, err := LoadAPIKey(); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey before save, got %v", err)
	}

	if err := SaveAPIKey("  sk-test-1234  "); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	got, err := LoadAPIKey()
	if err != nil {
		t.Fatalf("LoadAPIKey: %v", err)
	}
	if got != "sk-test-1234" {
		t.Errorf("expected trimmed key, got %q", got)
	}

	if err := DeleteAPIKey(); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if _, err := LoadAPIKey(); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey after delete, got %v", err)
	}
	if err := DeleteAPIKey(); err != nil {
		t.Fatalf("deleting twice should be fine, got %v", err)
	}
}

func TestSaveAPIKey_Empty(t *testing.T) {
	keyring.MockInit()
	if err := SaveAPIKey("   "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestMask(t *testing.T) {
	if got := Mask("sk-abcdef1234"); got != "*********1234" {
		t.Errorf("unexpected mask: %s", got)
	}
	if got := Mask("abc"); got != "***" {
		t.Errorf("unexpected mask: %s", got)
	}
}
