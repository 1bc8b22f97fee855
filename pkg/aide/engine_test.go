package aide

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/chat"
	"github.com/harunnryd/aide/pkg/conversation"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/llm"
	"github.com/harunnryd/aide/pkg/plugins"
)

// syncBuffer guards console output shared with the engine goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		HistoryFile: filepath.Join(dir, "chat_history.json"),
		Vendors: VendorsConfig{
			LLM: VendorConfig{Provider: "mock", Settings: map[string]any{"response_text": "hello there"}},
			TTS: VendorConfig{Provider: "mock"},
		},
		Voice:   VoiceConfig{Output: true},
		Plugins: PluginsConfig{Tasks: TasksConfig{File: filepath.Join(dir, "tasks.json")}},
		Chat:    chat.Config{NoColor: true},
		Metrics: MetricsConfig{JSONL: filepath.Join(dir, "events.jsonl")},
	}
}

func runEngine(t *testing.T, e *Engine) <-chan error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	errCh := make(chan error, 1)
	go func() {
		defer cancel()
		errCh <- e.Run(ctx)
	}()
	return errCh
}

func loadHistory(t *testing.T, path string) []conversation.Turn {
	t.Helper()
	tr, isNew, err := conversation.NewJSONStore(conversation.NewFileStore(path)).Load("unused")
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if isNew {
		t.Fatalf("expected history at %s", path)
	}
	return tr.Turns()
}

func TestEngineTypedSessionSavesTranscript(t *testing.T) {
	cfg := testConfig(t)
	out := &syncBuffer{}
	e, err := NewEngine(context.Background(), EngineOptions{
		Config: cfg,
		In:     strings.NewReader("hi\nexit\n"),
		Out:    out,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := <-runEngine(t, e); err != nil {
		t.Fatalf("run: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "hello there") || !strings.Contains(text, "Exiting...") {
		t.Fatalf("unexpected console output:\n%s", text)
	}
	turns := loadHistory(t, cfg.HistoryFile)
	if len(turns) != 3 {
		t.Fatalf("expected system, user and assistant turns, got %+v", turns)
	}
	if turns[0].Role != llm.RoleSystem || turns[1].Content != "hi" || turns[2].Content != "hello there" {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if _, err := os.Stat(cfg.Metrics.JSONL); err != nil {
		t.Fatalf("expected metrics file: %v", err)
	}
}

func TestEngineResumesHistory(t *testing.T) {
	cfg := testConfig(t)
	prev := conversation.New("custom prompt")
	prev.AddUser("earlier question")
	prev.AddAssistant("earlier answer")
	if err := conversation.NewJSONStore(conversation.NewFileStore(cfg.HistoryFile)).Save(prev); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	e, err := NewEngine(context.Background(), EngineOptions{Config: cfg, In: strings.NewReader("q\n"), Out: io.Discard})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if got := e.Transcript().Len(); got != 3 {
		t.Fatalf("expected resumed transcript of 3 turns, got %d", got)
	}
	if err := <-runEngine(t, e); err != nil {
		t.Fatalf("run: %v", err)
	}
	turns := loadHistory(t, cfg.HistoryFile)
	if turns[0].Content != "custom prompt" || len(turns) != 3 {
		t.Fatalf("history should be unchanged, got %+v", turns)
	}
}

func TestEngineVoiceUtteranceAnswered(t *testing.T) {
	cfg := testConfig(t)
	cfg.Voice.Enabled = true
	cfg.Vendors.STT = VendorConfig{Provider: "mock", Settings: map[string]any{"transcripts": []any{"what is the weather"}}}

	start := time.Unix(0, 0)
	list := audio.SpeechFrames(start, 20, 50*time.Millisecond, 0.3)
	list = append(list, audio.SpeechFrames(start.Add(time.Second), 20, 50*time.Millisecond, 0)...)

	pr, pw := io.Pipe()
	defer pw.Close()
	e, err := NewEngine(context.Background(), EngineOptions{
		Config: cfg,
		Source: audio.NewMemorySource(list, 0),
		In:     pr,
		Out:    io.Discard,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	errCh := runEngine(t, e)

	deadline := time.Now().Add(3 * time.Second)
	for {
		turns := e.Transcript().Turns()
		if len(turns) >= 3 && turns[1].Content == "what is the weather" && turns[2].Content == "hello there" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("voice turn was not answered, transcript %+v", turns)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := pw.Write([]byte("exit\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(loadHistory(t, cfg.HistoryFile)) != 3 {
		t.Fatalf("expected voice exchange to be saved")
	}
}

func TestNewEngineRejectsCorruptHistory(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.HistoryFile, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewEngine(context.Background(), EngineOptions{Config: cfg, In: strings.NewReader(""), Out: io.Discard})
	if !errorsx.HasReason(err, errorsx.ReasonTranscriptLoad) {
		t.Fatalf("expected transcript_load, got %v", err)
	}
}

func TestNewEngineRejectsDuplicatePlugin(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewEngine(context.Background(), EngineOptions{
		Config:  cfg,
		Plugins: []plugins.Plugin{plugins.Calculator{}},
		In:      strings.NewReader(""),
		Out:     io.Discard,
	})
	if err == nil {
		t.Fatalf("expected duplicate plugin error")
	}
}

func TestNewEngineSearchNeedsCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.Enabled = true
	_, err := NewEngine(context.Background(), EngineOptions{Config: cfg, In: strings.NewReader(""), Out: io.Discard})
	if !errorsx.HasReason(err, errorsx.ReasonConfigMissing) {
		t.Fatalf("expected config_missing, got %v", err)
	}
}

func TestEngineMetricsPortTakenIsConfigError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	cfg := testConfig(t)
	cfg.Metrics.Addr = taken.Addr().String()
	e, err := NewEngine(context.Background(), EngineOptions{
		Config: cfg,
		In:     strings.NewReader("hi\nexit\n"),
		Out:    &syncBuffer{},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	err = <-runEngine(t, e)
	if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) || !errorsx.Fatal(err) {
		t.Fatalf("expected config_invalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "metrics.addr") {
		t.Fatalf("expected error to name metrics.addr, got %v", err)
	}
}
