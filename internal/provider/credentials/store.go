// Package credentials stores the LLM API key in the operating system keyring
// so it does not have to live in the config file or the environment.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "miniclaw"
	keyringUser    = "api_key"
)

// ErrNoAPIKey is returned when the keyring holds no API key.
var ErrNoAPIKey = errors.New("no API key stored in keyring")

// LoadAPIKey reads the stored API key.
func LoadAPIKey() (string, error) {
	val, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoAPIKey
		}
		return "", fmt.Errorf("read keyring: %w", err)
	}
	if strings.TrimSpace(val) == "" {
		return "", ErrNoAPIKey
	}
	return val, nil
}

// SaveAPIKey stores key in the keyring, replacing any previous value.
func SaveAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored key. Deleting a missing key is not an error.
func DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete keyring entry: %w", err)
	}
	return nil
}

// Mask renders a key for display, keeping only its last four characters.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
