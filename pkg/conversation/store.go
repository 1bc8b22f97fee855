package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/harunnryd/aide/pkg/errorsx"
)

// Store persists raw transcript bytes.
type Store interface {
	// Load returns fs.ErrNotExist when nothing was saved yet.
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileStore writes the whole transcript to one file, replacing it each time.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = "chat_history.json"
	}
	return &FileStore{Path: path}
}

func (s *FileStore) Load() ([]byte, error) {
	return os.ReadFile(s.Path)
}

func (s *FileStore) Save(data []byte) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// JSONStore encodes a transcript as an indented JSON array of
// {"role","content"} objects.
type JSONStore struct {
	store Store
}

func NewJSONStore(store Store) *JSONStore {
	return &JSONStore{store: store}
}

// Load returns the saved transcript. isNew is true when nothing was saved,
// in which case the transcript starts with systemPrompt.
func (s *JSONStore) Load(systemPrompt string) (t *Transcript, isNew bool, err error) {
	data, err := s.store.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return New(systemPrompt), true, nil
	}
	if err != nil {
		return nil, false, errorsx.Wrap(fmt.Errorf("load transcript: %w", err), errorsx.ReasonTranscriptLoad)
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, false, errorsx.Wrap(fmt.Errorf("decode transcript: %w", err), errorsx.ReasonTranscriptLoad)
	}
	return NewTranscript(turns...), false, nil
}

func (s *JSONStore) Save(t *Transcript) error {
	turns := t.Turns()
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTranscriptSave)
	}
	if err := s.store.Save(data); err != nil {
		return errorsx.Wrap(fmt.Errorf("save transcript: %w", err), errorsx.ReasonTranscriptSave)
	}
	return nil
}
