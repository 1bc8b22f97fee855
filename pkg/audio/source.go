// Package audio captures PCM16 microphone frames and provides the small
// amount of signal math the assistant needs.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/aide/pkg/frames"
)

// Source pushes captured audio into a channel. The capture callback only
// copies samples and sends; it never runs business logic.
type Source interface {
	// Name returns the backend name for logging.
	Name() string
	// Start begins capture. Frames are delivered until ctx is done or Close.
	Start(ctx context.Context) error
	// Frames returns the channel of captured frames. It is closed when the
	// source stops.
	Frames() <-chan frames.AudioFrame
	// Dropped reports frames lost because the consumer fell behind.
	Dropped() int64
	// Close stops capture and releases the device.
	Close() error
}

// Config describes the capture format.
type Config struct {
	Backend       string        `mapstructure:"backend"`
	SampleRate    int           `mapstructure:"sample_rate"`
	Channels      int           `mapstructure:"channels"`
	FrameDuration time.Duration `mapstructure:"frame_duration"`
	Buffer        int           `mapstructure:"buffer"`
	ListenAddr    string        `mapstructure:"listen_addr"`
	Path          string        `mapstructure:"path"`
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 50 * time.Millisecond
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8765"
	}
	if c.Path == "" {
		c.Path = "/audio"
	}
	return c
}

// FramesPerBuffer is the sample count of one capture frame.
func (c Config) FramesPerBuffer() int {
	c = c.withDefaults()
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// NewSource builds the configured capture backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "portaudio", "mic":
		return newPortAudioSource(cfg, logger)
	case "websocket", "ws":
		return NewWebSocketSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("audio: unknown backend %q", cfg.Backend)
	}
}

// frameSink is the shared non-blocking delivery used by every backend.
type frameSink struct {
	mu      sync.RWMutex
	ch      chan frames.AudioFrame
	dropped atomic.Int64
	closed  bool
}

func newFrameSink(buffer int) *frameSink {
	return &frameSink{ch: make(chan frames.AudioFrame, buffer)}
}

func (s *frameSink) send(f frames.AudioFrame) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		frames.ReleaseAudioFrame(f)
		return false
	}
	select {
	case s.ch <- f:
		return true
	default:
		s.dropped.Add(1)
		frames.ReleaseAudioFrame(f)
		return false
	}
}

func (s *frameSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
