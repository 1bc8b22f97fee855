package turn

import (
	"sync"
	"testing"

	"github.com/harunnryd/aide/pkg/frames"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/session"
)

type captureEmitter struct {
	mu     sync.Mutex
	frames []frames.Frame
	// playbackAtEmit records the session playback state seen by the emitter.
	sess           *session.Session
	playbackAtEmit []session.PlaybackState
}

func (c *captureEmitter) Emit(frame frames.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	if c.sess != nil {
		c.playbackAtEmit = append(c.playbackAtEmit, c.sess.Playback())
	}
	return nil
}

func (c *captureEmitter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func speakingManager(t *testing.T, strategy Strategy) (Manager, *session.Session, *captureEmitter) {
	t.Helper()
	sess := session.New(true)
	emitter := &captureEmitter{sess: sess}
	m := NewManager(sess, strategy, emitter)
	m.OnUserSpeechStart()
	m.OnUtterance()
	m.OnTranscribed()
	m.OnReplyReady(true)
	if !sess.StartPlayback() {
		t.Fatalf("expected playback to start")
	}
	if m.State() != StateAssistantSpeaking {
		t.Fatalf("expected ASSISTANT_SPEAKING, got %s", m.State())
	}
	return m, sess, emitter
}

func TestBargeInSilencesPlaybackBeforeTransition(t *testing.T) {
	m, sess, emitter := speakingManager(t, BargeInStrategy{})
	var playbackAtTransition session.PlaybackState = session.PlaybackSpeaking
	m.AddListener(StateListenerFunc(func(ev StateChange) {
		if ev.ToState == StateUserSpeaking {
			playbackAtTransition = sess.Playback()
		}
	}))
	epoch := sess.Epoch()

	m.OnUserSpeechStart()

	if playbackAtTransition != session.PlaybackSilent {
		t.Fatalf("playback must be silent before USER_SPEAKING is published")
	}
	if emitter.Count() != 2 {
		t.Fatalf("expected flush and cancel frames, got %d", emitter.Count())
	}
	for i, st := range emitter.playbackAtEmit {
		if st != session.PlaybackSilent {
			t.Fatalf("frame %d emitted while playback still speaking", i)
		}
	}
	cf := emitter.frames[1].(frames.ControlFrame)
	if cf.Code() != frames.ControlCancel || cf.Meta()[frames.MetaReason] != "barge_in" {
		t.Fatalf("unexpected control frame %s %v", cf.Code(), cf.Meta())
	}
	if sess.Epoch() != epoch+1 {
		t.Fatalf("expected a new turn epoch")
	}
	if m.State() != StateUserSpeaking {
		t.Fatalf("expected USER_SPEAKING, got %s", m.State())
	}
}

func TestMuteStrategyDropsFramesWhileSpeaking(t *testing.T) {
	m, sess, emitter := speakingManager(t, MuteStrategy{})
	if m.AcceptFrame() {
		t.Fatalf("mute strategy must drop frames during playback")
	}
	m.OnPlaybackDone()
	if !m.AcceptFrame() {
		t.Fatalf("frames must flow again once playback ends")
	}
	if sess.Playback() != session.PlaybackSilent || m.State() != StateListenIdle {
		t.Fatalf("expected idle and silent after playback")
	}
	if emitter.Count() != 0 {
		t.Fatalf("no interrupt expected")
	}
}

func TestTypedInputAlwaysInterrupts(t *testing.T) {
	m, sess, emitter := speakingManager(t, MuteStrategy{})
	m.OnUserText()
	if sess.Playback() != session.PlaybackSilent {
		t.Fatalf("typed input must stop playback")
	}
	if emitter.Count() != 2 {
		t.Fatalf("expected interrupt frames")
	}
	if m.State() != StateAwaitingReply {
		t.Fatalf("expected AWAITING_REPLY, got %s", m.State())
	}
}

func TestFailureReturnsToListening(t *testing.T) {
	sess := session.New(false)
	obs := metrics.NewMemoryObserver()
	m := NewManagerWithOptions(sess, nil, nil, ManagerOptions{Observer: obs})
	m.OnUserSpeechStart()
	m.OnUtterance()
	if sess.Voice() != session.VoiceAwaitingTranscription {
		t.Fatalf("expected awaiting transcription, got %s", sess.Voice())
	}
	m.OnTurnFailed("stt_exit")
	if m.State() != StateListenIdle || sess.Voice() != session.VoiceIdle {
		t.Fatalf("expected idle after failure, got %s / %s", m.State(), sess.Voice())
	}
	if obs.Count(metrics.EventBargeIn) != 0 {
		t.Fatalf("no barge-in without playback")
	}
}

func TestDiscardedUtteranceReturnsToIdle(t *testing.T) {
	m := NewManager(session.New(false), BargeInStrategy{}, nil)
	m.OnUserSpeechStart()
	m.OnUtteranceDiscarded()
	if m.State() != StateListenIdle {
		t.Fatalf("expected LISTEN_IDLE, got %s", m.State())
	}
	m.OnReplyReady(false)
	if m.State() != StateListenIdle {
		t.Fatalf("late reply must not move an idle machine")
	}
}

func TestStrategyByName(t *testing.T) {
	if StrategyByName("mute").BargeInEnabled() {
		t.Fatalf("mute must disable barge-in")
	}
	if !StrategyByName("").BargeInEnabled() || StrategyByName("barge_in").Name() != "barge_in" {
		t.Fatalf("default must be barge-in")
	}
}
