// Package voice connects audio capture, speech detection, transcription and
// playback to the turn coordinator.
package voice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/frames"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/turn"
	"github.com/harunnryd/aide/pkg/utterance"
	"github.com/harunnryd/aide/pkg/vad"
)

type CaptureOptions struct {
	Logger   *slog.Logger
	Observer metrics.Observer
}

// Capture drains an audio source through the detector and queues finished
// utterances. It is the only goroutine that touches the detector.
type Capture struct {
	source   audio.Source
	detector *vad.Detector
	queue    *utterance.Queue
	turns    turn.Manager
	logger   *slog.Logger
	obs      metrics.Observer
	dropped  int64
}

func NewCapture(source audio.Source, detector *vad.Detector, queue *utterance.Queue, turns turn.Manager, opts CaptureOptions) *Capture {
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &Capture{
		source:   source,
		detector: detector,
		queue:    queue,
		turns:    turns,
		logger:   logging.NewComponentLogger(opts.Logger, "capture"),
		obs:      opts.Observer,
	}
}

// Run starts the source and blocks until its frame channel closes or ctx is
// done. A partial utterance is flushed when the source ends.
func (c *Capture) Run(ctx context.Context) error {
	if err := c.source.Start(ctx); err != nil {
		return errorsx.Wrap(fmt.Errorf("start %s source: %w", c.source.Name(), err), errorsx.ReasonAudioSource)
	}
	c.logger.Info("capture_started", "source", c.source.Name())
	in := c.source.Frames()
	for {
		select {
		case <-ctx.Done():
			c.flush()
			return nil
		case f, ok := <-in:
			if !ok {
				c.flush()
				return nil
			}
			c.handle(f)
		}
	}
}

func (c *Capture) handle(f frames.AudioFrame) {
	defer frames.ReleaseAudioFrame(f)
	c.recordDrops()
	if !c.turns.AcceptFrame() {
		if c.detector.InSpeech() {
			c.detector.Reset()
			c.turns.OnUtteranceDiscarded()
		}
		return
	}
	u, ev := c.detector.ProcessFrame(f)
	c.dispatch(u, ev)
}

func (c *Capture) flush() {
	u, ev := c.detector.Flush()
	c.dispatch(u, ev)
}

func (c *Capture) dispatch(u *utterance.Utterance, ev vad.Event) {
	switch ev {
	case vad.EventSpeechStart:
		c.logger.Debug("speech_start", "level", c.detector.Level())
		metrics.Record(c.obs, metrics.EventSpeechStart, c.detector.Level(), nil)
		c.turns.OnUserSpeechStart()
	case vad.EventDiscarded:
		c.logger.Debug("utterance_discarded")
		metrics.Record(c.obs, metrics.EventUtteranceDiscarded, 0, nil)
		c.turns.OnUtteranceDiscarded()
	case vad.EventSpeechEnd:
		if err := c.queue.Push(*u); err != nil {
			c.logger.Debug("utterance_rejected", "utterance_id", u.ID(), "error", err.Error())
			c.turns.OnUtteranceDiscarded()
			return
		}
		c.logger.Info("utterance_queued",
			"utterance_id", u.ID(),
			"duration_ms", u.Duration().Milliseconds(),
			"bytes", u.Size(),
			"queue_len", c.queue.Len(),
		)
		metrics.Record(c.obs, metrics.EventUtteranceQueued, float64(u.Duration().Milliseconds()), nil)
		c.turns.OnUtterance()
	}
}

func (c *Capture) recordDrops() {
	n := c.source.Dropped()
	if n <= c.dropped {
		return
	}
	delta := n - c.dropped
	c.dropped = n
	c.logger.Warn("frames_dropped", "count", delta, "total", n)
	metrics.Record(c.obs, metrics.EventFrameDropped, float64(delta), map[string]string{"source": c.source.Name()})
}
