package conversation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harunnryd/aide/pkg/llm"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "chat_history.json")
	store := NewJSONStore(NewFileStore(path))

	tr, isNew, err := store.Load("be helpful")
	if err != nil || !isNew {
		t.Fatalf("expected new conversation, isNew=%v err=%v", isNew, err)
	}
	tr.AddUser("hi there")
	tr.AddAssistant("Hello! **How** can I help?")
	tr.AddUser("line one\nline two")
	if err := store.Save(tr); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, isNew, err := store.Load("ignored")
	if err != nil || isNew {
		t.Fatalf("expected existing conversation, isNew=%v err=%v", isNew, err)
	}
	want := tr.Turns()
	got := loaded.Turns()
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: got %+v want %+v", i, got[i], want[i])
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "\n  {\n    \"role\": \"system\"") {
		t.Fatalf("expected indented JSON, got %s", raw)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewJSONStore(NewFileStore(path)).Load(""); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestTrimKeepsSystemPrompt(t *testing.T) {
	tr := New("sys")
	for i := 0; i < 5; i++ {
		tr.AddUser("u")
		tr.AddAssistant("a")
	}
	if removed := tr.Trim(4); removed != 4 {
		t.Fatalf("expected 4 removed, got %d", removed)
	}
	turns := tr.Turns()
	if len(turns) != 7 || turns[0].Role != llm.RoleSystem {
		t.Fatalf("unexpected transcript after trim: %+v", turns)
	}
	if removed := tr.Trim(100); removed != 6 || tr.Len() != 1 {
		t.Fatalf("over-trim must keep only the system prompt, removed %d len %d", removed, tr.Len())
	}
	if removed := tr.Trim(0); removed != 0 {
		t.Fatalf("zero trim must keep everything")
	}
}

func TestMessagesPreserveOrder(t *testing.T) {
	tr := New("")
	tr.AddUser("first")
	tr.AddAssistant("second")
	msgs := tr.Messages()
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Role != llm.RoleAssistant {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
