package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/aide/pkg/adapters/tts"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/frames"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/session"
	"github.com/harunnryd/aide/pkg/turn"
)

// Playback owns the speaker. It keeps the session playback flag in step with
// the synthesizer and receives interrupt frames from the turn coordinator.
type Playback struct {
	speaker tts.Speaker
	sess    *session.Session
	logger  *slog.Logger

	mu    sync.Mutex
	turns turn.Manager
	// gen identifies the current playback. Completion of an older one is
	// ignored.
	gen atomic.Uint64
}

func NewPlayback(speaker tts.Speaker, sess *session.Session, logger *slog.Logger) *Playback {
	return &Playback{
		speaker: speaker,
		sess:    sess,
		logger:  logging.NewComponentLogger(logger, "playback"),
	}
}

// Bind sets the coordinator told about natural playback completion. The
// coordinator is built with the Playback as its emitter, so this happens
// after construction.
func (p *Playback) Bind(m turn.Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = m
}

func (p *Playback) manager() turn.Manager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turns
}

// Speak cleans text and starts playback for the user turn identified by
// epoch. It returns false when there was nothing worth saying or when the
// user took the floor before the synthesizer was running.
func (p *Playback) Speak(ctx context.Context, text string, epoch uint64) (bool, error) {
	if !tts.ShouldSpeak(text) {
		return false, nil
	}
	cleaned := tts.CleanText(text)
	if cleaned == "" {
		return false, nil
	}
	if p.sess.StopPlayback() {
		p.speaker.Stop()
	}
	g := p.gen.Add(1)
	if p.sess.Epoch() != epoch || !p.sess.StartPlayback() {
		return false, nil
	}
	// A barge-in between the epoch check and StartPlayback found nothing to
	// stop, so back out here.
	if p.superseded(g, epoch) {
		p.sess.StopPlayback()
		p.logger.Info("playback_superseded", "stage", "start")
		return false, nil
	}
	done, err := p.speaker.Speak(ctx, cleaned)
	if err != nil {
		p.sess.StopPlayback()
		return false, errorsx.Wrap(fmt.Errorf("%s speak: %w", p.speaker.Name(), err), errorsx.ReasonTTSSpeak)
	}
	// The cancel frame may have reached the speaker before it had started.
	if p.superseded(g, epoch) {
		p.sess.StopPlayback()
		p.speaker.Stop()
		p.logger.Info("playback_superseded", "stage", "speak")
		return false, nil
	}
	p.logger.Debug("playback_started", "provider", p.speaker.Name(), "chars", len(cleaned))
	go p.await(g, done)
	return true, nil
}

func (p *Playback) superseded(g, epoch uint64) bool {
	return p.gen.Load() != g || p.sess.Epoch() != epoch || p.sess.Playback() != session.PlaybackSpeaking
}

func (p *Playback) await(g uint64, done <-chan struct{}) {
	<-done
	if p.gen.Load() != g {
		return
	}
	// Silent already means a barge-in got here first.
	if !p.sess.StopPlayback() {
		return
	}
	p.logger.Debug("playback_done")
	if m := p.manager(); m != nil {
		m.OnPlaybackDone()
	}
}

// Stop cuts playback short without notifying the coordinator.
func (p *Playback) Stop() {
	p.gen.Add(1)
	p.sess.StopPlayback()
	p.speaker.Stop()
}

// Emit implements turn.InterruptEmitter.
func (p *Playback) Emit(f frames.Frame) error {
	cf, ok := f.(frames.ControlFrame)
	if !ok {
		return nil
	}
	switch cf.Code() {
	case frames.ControlFlush:
		p.gen.Add(1)
	case frames.ControlCancel, frames.ControlStartInterruption:
		p.speaker.Stop()
		p.logger.Info("playback_cancelled", "reason", cf.Meta()[frames.MetaReason])
	}
	return nil
}
