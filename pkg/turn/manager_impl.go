package turn

import (
	"log/slog"
	"time"

	"github.com/harunnryd/aide/pkg/frames"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/session"
)

type ManagerOptions struct {
	Logger   *slog.Logger
	Observer metrics.Observer
}

type manager struct {
	sm       *stateMachine
	sess     *session.Session
	strategy Strategy
	emit     InterruptEmitter
	logger   *slog.Logger
	obs      metrics.Observer
}

func NewManager(sess *session.Session, strategy Strategy, emitter InterruptEmitter) Manager {
	return NewManagerWithOptions(sess, strategy, emitter, ManagerOptions{})
}

func NewManagerWithOptions(sess *session.Session, strategy Strategy, emitter InterruptEmitter, opts ManagerOptions) Manager {
	if strategy == nil {
		strategy = BargeInStrategy{}
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &manager{
		sm:       newStateMachine(),
		sess:     sess,
		strategy: strategy,
		emit:     emitter,
		logger:   logging.NewComponentLogger(opts.Logger, "turn"),
		obs:      opts.Observer,
	}
}

func (m *manager) State() State { return m.sm.State() }

func (m *manager) Strategy() Strategy { return m.strategy }

func (m *manager) AddListener(listener StateListener) { m.sm.AddListener(listener) }

func (m *manager) AcceptFrame() bool {
	if m.strategy.BargeInEnabled() {
		return true
	}
	return m.sess.Playback() != session.PlaybackSpeaking
}

func (m *manager) OnUserSpeechStart() {
	m.sess.NextEpoch()
	m.sess.SetVoice(session.VoiceSpeechDetected)
	if m.strategy.BargeInEnabled() {
		m.interrupt("barge_in")
	}
	m.move(StateUserSpeaking, "user speech start")
}

func (m *manager) OnUtteranceDiscarded() {
	m.sess.CompareAndSwapVoice(session.VoiceSpeechDetected, session.VoiceIdle)
	m.moveFrom([]State{StateUserSpeaking}, StateListenIdle, "utterance discarded")
}

func (m *manager) OnUtterance() {
	m.sess.CompareAndSwapVoice(session.VoiceSpeechDetected, session.VoiceAwaitingTranscription)
	m.moveFrom([]State{StateUserSpeaking}, StateAwaitingReply, "utterance queued")
}

func (m *manager) OnTranscribed() {
	m.sess.CompareAndSwapVoice(session.VoiceAwaitingTranscription, session.VoiceIdle)
}

func (m *manager) OnUserText() {
	m.sess.NextEpoch()
	m.interrupt("typed_input")
	m.move(StateAwaitingReply, "user text")
}

func (m *manager) OnReplyReady(speak bool) {
	if speak {
		m.moveFrom([]State{StateAwaitingReply, StateListenIdle}, StateAssistantSpeaking, "reply ready")
		return
	}
	m.moveFrom([]State{StateAwaitingReply}, StateListenIdle, "reply not spoken")
}

func (m *manager) OnPlaybackDone() {
	m.sess.StopPlayback()
	m.moveFrom([]State{StateAssistantSpeaking}, StateListenIdle, "playback complete")
}

func (m *manager) OnTurnFailed(reason string) {
	m.sess.CompareAndSwapVoice(session.VoiceAwaitingTranscription, session.VoiceIdle)
	m.logger.Warn("turn_failed", "reason", reason, "state", m.sm.State().String())
	m.moveFrom([]State{StateAwaitingReply, StateUserSpeaking}, StateListenIdle, reason)
}

// interrupt stops playback before any state change is published. The
// session flag flips first so concurrent readers never see Speaking after
// the cancel frames go out.
func (m *manager) interrupt(reason string) {
	if !m.sess.StopPlayback() {
		return
	}
	start := time.Now()
	meta := map[string]string{
		frames.MetaSource: "turn",
		frames.MetaReason: reason,
	}
	if m.emit != nil {
		now := time.Now().UnixNano()
		_ = m.emit.Emit(NewFlushFrame(m.sess.ID(), now, meta))
		_ = m.emit.Emit(NewCancelFrame(m.sess.ID(), now, meta))
	}
	m.logger.Info("barge_in", "reason", reason)
	m.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventBargeIn,
		Time:  time.Now(),
		Value: float64(time.Since(start).Microseconds()) / 1000,
		Tags:  map[string]string{"reason": reason, "strategy": m.strategy.Name()},
	})
}

func (m *manager) move(to State, reason string) {
	m.moveFrom(nil, to, reason)
}

func (m *manager) moveFrom(from []State, to State, reason string) {
	if err := m.sm.TransitionFrom(from, to, reason); err != nil {
		m.logger.Debug("turn_transition_skipped", "error", err.Error(), "reason", reason)
	}
}
