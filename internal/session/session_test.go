package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	msgs := s.Load("telegram:42")
	if msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", msgs)
	}
}

func TestStore_AppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	key := "telegram:42"

	if err := s.Append(key, Message{Role: "user", Content: "hi"}, Message{Role: "assistant", Content: "hello"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(key, Message{Role: "user", Content: "again"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs := s.Load(key)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hi" || msgs[2].Content != "again" {
		t.Errorf("unexpected order: %+v", msgs)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), "telegram_42.json"))
	if err != nil {
		t.Fatalf("session file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n  {") {
		t.Errorf("expected indented JSON array, got %q", string(data)[:10])
	}
}

func TestStore_CorruptFileYieldsEmpty(t *testing.T) {
	s := newTestStore(t)
	os.WriteFile(filepath.Join(s.Dir(), "bad.json"), []byte("{not json"), 0644)

	if msgs := s.Load("bad"); len(msgs) != 0 {
		t.Fatalf("expected empty history for corrupt file, got %v", msgs)
	}
	// A corrupt history is replaced on the next append.
	if err := s.Append("bad", Message{Role: "user", Content: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if msgs := s.Load("bad"); len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestStore_DeleteAndStats(t *testing.T) {
	s := newTestStore(t)
	key := "slack:C1"
	s.Save(key, []Message{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "c"},
	})

	st := s.Stats(key)
	if st.Total != 3 || st.User != 2 || st.Assistant != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}

	existed, err := s.Delete(key)
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	existed, err = s.Delete(key)
	if err != nil || existed {
		t.Fatalf("second Delete = %v, %v", existed, err)
	}
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)
	s.Save("cli:default", []Message{{Role: "user", Content: "a"}})
	s.Save("telegram:7", []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}})

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	counts := map[string]int{}
	for _, info := range list {
		counts[info.Key] = info.Messages
	}
	if counts["telegram:7"] != 2 || counts["cli:default"] != 1 {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestStore_SessionPathSanitized(t *testing.T) {
	s := newTestStore(t)
	path := s.sessionPath("../../etc/passwd")
	if filepath.Dir(path) != s.Dir() {
		t.Fatalf("session path escaped store dir: %s", path)
	}
}
