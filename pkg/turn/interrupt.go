package turn

import (
	"github.com/harunnryd/aide/pkg/frames"
)

// InterruptEmitter receives control frames when playback must stop.
// Emit runs synchronously on the caller's goroutine.
type InterruptEmitter interface {
	Emit(frame frames.Frame) error
}

// EmitterFunc adapts a function to InterruptEmitter.
type EmitterFunc func(frame frames.Frame) error

func (f EmitterFunc) Emit(frame frames.Frame) error { return f(frame) }

func NewFlushFrame(streamID string, pts int64, meta map[string]string) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlFlush, meta)
}

func NewCancelFrame(streamID string, pts int64, meta map[string]string) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlCancel, meta)
}

func NewInterruptFrame(streamID string, pts int64, meta map[string]string) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlStartInterruption, meta)
}
