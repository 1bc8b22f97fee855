package audio

import (
	"context"
	"time"

	"github.com/harunnryd/aide/pkg/frames"
)

// MemorySource replays a fixed list of frames, then closes. Frames keep their
// own timestamps so detectors see deterministic time.
type MemorySource struct {
	list []frames.AudioFrame
	sink *frameSink
	pace time.Duration
}

func NewMemorySource(list []frames.AudioFrame, pace time.Duration) *MemorySource {
	return &MemorySource{list: list, sink: newFrameSink(len(list) + 1), pace: pace}
}

func (m *MemorySource) Name() string                     { return "memory" }
func (m *MemorySource) Frames() <-chan frames.AudioFrame { return m.sink.ch }
func (m *MemorySource) Dropped() int64                   { return m.sink.dropped.Load() }

func (m *MemorySource) Start(ctx context.Context) error {
	go func() {
		defer m.sink.close()
		for _, f := range m.list {
			if m.pace > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.pace):
				}
			} else if ctx.Err() != nil {
				return
			}
			m.sink.send(f)
		}
	}()
	return nil
}

func (m *MemorySource) Close() error {
	m.sink.close()
	return nil
}

// SpeechFrames builds count consecutive frames of the given loudness starting
// at start, each frameDur long, at 16 kHz mono.
func SpeechFrames(start time.Time, count int, frameDur time.Duration, amplitude float64) []frames.AudioFrame {
	n := int(16000 * frameDur / time.Second)
	out := make([]frames.AudioFrame, 0, count)
	for i := 0; i < count; i++ {
		pts := start.Add(time.Duration(i) * frameDur).UnixNano()
		out = append(out, frames.NewAudioFrame("test", pts, Bytes(Tone(n, amplitude)), 16000, 1, nil))
	}
	return out
}
