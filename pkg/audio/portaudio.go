//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/frames"
)

// PortAudioSource captures the default input device.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger
	sink   *frameSink

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
	done    chan struct{}
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &PortAudioSource{
		cfg:    cfg,
		logger: logger,
		sink:   newFrameSink(cfg.Buffer),
		done:   make(chan struct{}),
	}, nil
}

func (s *PortAudioSource) Name() string                     { return "portaudio" }
func (s *PortAudioSource) Frames() <-chan frames.AudioFrame { return s.sink.ch }
func (s *PortAudioSource) Dropped() int64                   { return s.sink.dropped.Load() }

func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return errorsx.Wrap(fmt.Errorf("portaudio init: %w", err), errorsx.ReasonAudioSource)
	}
	buf := make([]int16, s.cfg.FramesPerBuffer()*s.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(s.cfg.Channels, 0, float64(s.cfg.SampleRate), s.cfg.FramesPerBuffer(), buf)
	if err != nil {
		_ = portaudio.Terminate()
		return errorsx.Wrap(fmt.Errorf("portaudio open: %w", err), errorsx.ReasonAudioSource)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return errorsx.Wrap(fmt.Errorf("portaudio start: %w", err), errorsx.ReasonAudioSource)
	}
	s.stream = stream
	s.started = true
	s.logger.Info("audio_source_started", "backend", s.Name(), "sample_rate", s.cfg.SampleRate)
	go s.readLoop(ctx, stream, buf)
	return nil
}

func (s *PortAudioSource) readLoop(ctx context.Context, stream *portaudio.Stream, buf []int16) {
	defer close(s.done)
	defer s.sink.close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := stream.Read(); err != nil {
			// Input overflow is reported per read and is not fatal.
			if err == portaudio.InputOverflowed {
				continue
			}
			s.logger.Warn("audio_read_failed", "error", err.Error())
			return
		}
		s.sink.send(frames.NewAudioFrameFromSamples("mic", time.Now().UnixNano(), buf, s.cfg.SampleRate))
	}
}

func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	stream := s.stream
	started := s.started
	s.stream = nil
	s.started = false
	s.mu.Unlock()
	if !started {
		s.sink.close()
		return nil
	}
	err := stream.Stop()
	<-s.done
	_ = stream.Close()
	_ = portaudio.Terminate()
	return err
}
