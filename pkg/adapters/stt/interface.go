package stt

import (
	"context"
	"errors"

	"github.com/harunnryd/aide/pkg/utterance"
)

// ErrNoSpeech means the backend ran but recognised nothing usable.
var ErrNoSpeech = errors.New("no speech detected")

// Transcriber defines the contract for any speech-to-text backend.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe returns the recognised text for one utterance, or
	// ErrNoSpeech when the result is empty after cleaning.
	Transcribe(ctx context.Context, u utterance.Utterance) (string, error)
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	Language string `mapstructure:"language"`
	TempDir  string `mapstructure:"temp_dir"`
}
