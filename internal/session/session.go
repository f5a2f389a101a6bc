// Package session persists conversation history, one JSON file per
// conversation.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Message is one persisted history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stats summarizes a conversation.
type Stats struct {
	Total     int
	User      int
	Assistant int
}

// Info describes a stored conversation.
type Info struct {
	Key       string
	Path      string
	Messages  int
	UpdatedAt time.Time
}

// Store reads and writes conversation histories under a directory. Each
// conversation is a pretty-printed JSON array of messages.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// Load returns the history for key. A missing or unreadable file yields an
// empty history.
func (s *Store) Load(key string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(key)
}

func (s *Store) load(key string) []Message {
	path := s.sessionPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read session", "key", key, "error", err)
		}
		return []Message{}
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		slog.Warn("Corrupt session file, starting fresh", "key", key, "path", path, "error", err)
		return []Message{}
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs
}

// Save replaces the history for key.
func (s *Store) Save(key string, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(key, msgs)
}

func (s *Store) save(key string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	path := s.sessionPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Append adds messages to the end of the stored history.
func (s *Store) Append(key string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.load(key)
	return s.save(key, append(history, msgs...))
}

// Delete removes the history for key and reports whether one existed.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.sessionPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete session: %w", err)
	}
	return true, nil
}

// Stats counts the messages stored for key.
func (s *Store) Stats(key string) Stats {
	msgs := s.Load(key)
	st := Stats{Total: len(msgs)}
	for _, m := range msgs {
		switch m.Role {
		case "user":
			st.User++
		case "assistant":
			st.Assistant++
		}
	}
	return st
}

// List returns all stored conversations, most recently updated first.
func (s *Store) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Info
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		info := Info{
			Key:  strings.ReplaceAll(key, "_", ":"),
			Path: filepath.Join(s.dir, name),
		}
		if fi, err := entry.Info(); err == nil {
			info.UpdatedAt = fi.ModTime()
		}
		info.Messages = len(s.load(key))
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (s *Store) sessionPath(key string) string {
	safeKey := strings.ReplaceAll(key, ":", "_")
	// Strip path separators and traversal components to prevent path injection.
	safeKey = strings.ReplaceAll(safeKey, "/", "_")
	safeKey = strings.ReplaceAll(safeKey, "\\", "_")
	safeKey = strings.ReplaceAll(safeKey, "..", "_")
	return filepath.Join(s.dir, filepath.Base(safeKey)+".json")
}
