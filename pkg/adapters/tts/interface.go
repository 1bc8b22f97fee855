package tts

import "context"

// Speaker defines the contract for any text-to-speech backend.
type Speaker interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Speak starts playback of text and returns once playback has begun.
	// done is closed when playback ends, whether it finished or was stopped.
	Speak(ctx context.Context, text string) (done <-chan struct{}, err error)
	// Stop cancels any playback in progress. It is safe to call at any time.
	Stop()
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	Voice string `mapstructure:"voice"`
	Rate  int    `mapstructure:"rate"`
}
