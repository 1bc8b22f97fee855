// Package conversation keeps the ordered chat transcript and persists it
// between runs.
package conversation

import (
	"sync"

	"github.com/harunnryd/aide/pkg/llm"
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is an append-only list of turns. Trim is the only way to drop
// history and it never drops the leading system prompt.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewTranscript(turns ...Turn) *Transcript {
	return &Transcript{turns: append([]Turn(nil), turns...)}
}

// New starts a conversation with the given system prompt.
func New(systemPrompt string) *Transcript {
	if systemPrompt == "" {
		return NewTranscript()
	}
	return NewTranscript(Turn{Role: llm.RoleSystem, Content: systemPrompt})
}

func (t *Transcript) Append(role, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, Turn{Role: role, Content: content})
}

func (t *Transcript) AddUser(content string)      { t.Append(llm.RoleUser, content) }
func (t *Transcript) AddAssistant(content string) { t.Append(llm.RoleAssistant, content) }

// Turns returns a copy of the transcript.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Turn(nil), t.turns...)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the most recent turn.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Trim drops up to n of the oldest turns, keeping a leading system turn.
// It returns how many were removed.
func (t *Transcript) Trim(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 {
		return 0
	}
	keepHead := 0
	if len(t.turns) > 0 && t.turns[0].Role == llm.RoleSystem {
		keepHead = 1
	}
	avail := len(t.turns) - keepHead
	if n > avail {
		n = avail
	}
	out := make([]Turn, 0, len(t.turns)-n)
	out = append(out, t.turns[:keepHead]...)
	out = append(out, t.turns[keepHead+n:]...)
	t.turns = out
	return n
}

// Messages converts the transcript to the chat-completion message list.
func (t *Transcript) Messages() []llm.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]llm.Message, 0, len(t.turns))
	for _, turn := range t.turns {
		out = append(out, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return out
}
