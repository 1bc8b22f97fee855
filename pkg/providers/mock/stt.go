package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/aide/pkg/adapters/stt"
	"github.com/harunnryd/aide/pkg/utterance"
)

type STTConfig struct {
	Transcripts []string
	// Errs fails individual calls by position. A nil entry falls through
	// to Transcripts.
	Errs []error
	Err  error
}

// Transcriber returns scripted transcripts in order, then ErrNoSpeech.
type Transcriber struct {
	mu    sync.Mutex
	cfg   STTConfig
	calls int
	seen  []string
}

func NewTranscriber(cfg STTConfig) *Transcriber {
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string { return "mock_stt" }

func (t *Transcriber) Transcribe(ctx context.Context, u utterance.Utterance) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.calls
	t.calls++
	t.seen = append(t.seen, u.ID())
	if t.cfg.Err != nil {
		return "", t.cfg.Err
	}
	if i < len(t.cfg.Errs) && t.cfg.Errs[i] != nil {
		return "", t.cfg.Errs[i]
	}
	if i >= len(t.cfg.Transcripts) || t.cfg.Transcripts[i] == "" {
		return "", stt.ErrNoSpeech
	}
	return t.cfg.Transcripts[i], nil
}

func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Seen returns utterance IDs in the order they were transcribed.
func (t *Transcriber) Seen() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.seen...)
}
