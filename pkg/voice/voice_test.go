package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/frames"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/providers/mock"
	"github.com/harunnryd/aide/pkg/session"
	"github.com/harunnryd/aide/pkg/turn"
	"github.com/harunnryd/aide/pkg/utterance"
	"github.com/harunnryd/aide/pkg/vad"
)

const frameDur = 50 * time.Millisecond

func speech(start time.Time, loud, quiet int) []frames.AudioFrame {
	list := audio.SpeechFrames(start, loud, frameDur, 0.3)
	return append(list, audio.SpeechFrames(start.Add(time.Duration(loud)*frameDur), quiet, frameDur, 0)...)
}

func runCapture(t *testing.T, list []frames.AudioFrame, m turn.Manager, obs metrics.Observer) *utterance.Queue {
	t.Helper()
	q := utterance.NewQueue()
	c := NewCapture(audio.NewMemorySource(list, 0), vad.New(vad.DefaultConfig()), q, m, CaptureOptions{Observer: obs})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("capture: %v", err)
	}
	return q
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCaptureQueuesUtterance(t *testing.T) {
	sess := session.New(false)
	m := turn.NewManager(sess, turn.BargeInStrategy{}, nil)
	obs := metrics.NewMemoryObserver()
	q := runCapture(t, speech(time.Unix(100, 0), 20, 12), m, obs)
	if q.Len() != 1 {
		t.Fatalf("expected one utterance, got %d", q.Len())
	}
	if m.State() != turn.StateAwaitingReply {
		t.Fatalf("expected AWAITING_REPLY, got %s", m.State())
	}
	if sess.Voice() != session.VoiceAwaitingTranscription {
		t.Fatalf("expected awaiting transcription, got %s", sess.Voice())
	}
	if obs.Count(metrics.EventUtteranceQueued) != 1 || obs.Count(metrics.EventSpeechStart) != 1 {
		t.Fatalf("unexpected metrics")
	}
}

func TestCaptureDiscardsShortBurst(t *testing.T) {
	m := turn.NewManager(session.New(false), nil, nil)
	q := runCapture(t, speech(time.Unix(100, 0), 4, 12), m, nil)
	if q.Len() != 0 {
		t.Fatalf("short burst must not be queued")
	}
	if m.State() != turn.StateListenIdle {
		t.Fatalf("expected LISTEN_IDLE, got %s", m.State())
	}
}

func TestWorkerDropsFailedTranscription(t *testing.T) {
	sess := session.New(false)
	m := turn.NewManager(sess, nil, nil)
	q := utterance.NewQueue()
	pcm := audio.Bytes(audio.Tone(16000, 0.3))
	first := utterance.New(pcm, 16000, time.Unix(1, 0), time.Second)
	second := utterance.New(pcm, 16000, time.Unix(3, 0), time.Second)
	_ = q.Push(first)
	_ = q.Push(second)
	q.Close()

	exitErr := errorsx.Wrap(errors.New("exit status 1"), errorsx.ReasonSTTExit)
	tr := mock.NewTranscriber(mock.STTConfig{Errs: []error{exitErr}, Transcripts: []string{"", "what time is it"}})
	obs := metrics.NewMemoryObserver()
	w := NewWorker(q, tr, m, WorkerOptions{Observer: obs})

	var got []string
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	for text := range w.Transcripts() {
		got = append(got, text)
	}
	if err := <-done; err != nil {
		t.Fatalf("worker: %v", err)
	}
	if len(got) != 1 || got[0] != "what time is it" {
		t.Fatalf("unexpected transcripts %v", got)
	}
	seen := tr.Seen()
	if len(seen) != 2 || seen[0] != first.ID() || seen[1] != second.ID() {
		t.Fatalf("utterances not processed in order: %v", seen)
	}
	if obs.Count(metrics.EventTranscribeFailed) != 1 {
		t.Fatalf("expected one failure event")
	}
}

func speakingSetup(t *testing.T, strategy turn.Strategy) (*session.Session, turn.Manager, *Playback, *mock.Speaker) {
	t.Helper()
	sess := session.New(true)
	speaker := mock.NewSpeaker(false)
	pb := NewPlayback(speaker, sess, nil)
	m := turn.NewManager(sess, strategy, pb)
	pb.Bind(m)
	m.OnUserText()
	m.OnReplyReady(true)
	ok, err := pb.Speak(context.Background(), "**Hello** there", sess.Epoch())
	if err != nil || !ok {
		t.Fatalf("speak: ok=%v err=%v", ok, err)
	}
	if sess.Playback() != session.PlaybackSpeaking {
		t.Fatalf("expected speaking")
	}
	return sess, m, pb, speaker
}

func TestPlaybackCleansTextAndCompletes(t *testing.T) {
	sess, m, _, speaker := speakingSetup(t, nil)
	if spoken := speaker.Spoken(); len(spoken) != 1 || spoken[0] != "Hello there" {
		t.Fatalf("unexpected spoken text %v", spoken)
	}
	speaker.Finish()
	waitFor(t, "listen idle", func() bool { return m.State() == turn.StateListenIdle })
	if sess.Playback() != session.PlaybackSilent {
		t.Fatalf("expected silent after completion")
	}
}

func TestPlaybackSkipsPromptEcho(t *testing.T) {
	sess := session.New(true)
	pb := NewPlayback(mock.NewSpeaker(true), sess, nil)
	ok, err := pb.Speak(context.Background(), "How can I assist you today?", sess.Epoch())
	if err != nil || ok {
		t.Fatalf("expected prompt echo to be skipped, ok=%v err=%v", ok, err)
	}
}

func TestBargeInStopsPlaybackBeforeCapture(t *testing.T) {
	sess, m, _, speaker := speakingSetup(t, turn.BargeInStrategy{})
	playbackAtSpeech := session.PlaybackSpeaking
	m.AddListener(turn.StateListenerFunc(func(ev turn.StateChange) {
		if ev.ToState == turn.StateUserSpeaking {
			playbackAtSpeech = sess.Playback()
		}
	}))

	q := runCapture(t, speech(time.Unix(200, 0), 20, 12), m, nil)

	if playbackAtSpeech != session.PlaybackSilent {
		t.Fatalf("playback still speaking when user turn began")
	}
	if speaker.Stops() != 1 {
		t.Fatalf("expected speaker stopped once, got %d", speaker.Stops())
	}
	if q.Len() != 1 {
		t.Fatalf("expected the interrupting utterance to be queued")
	}
	time.Sleep(20 * time.Millisecond)
	if m.State() != turn.StateAwaitingReply {
		t.Fatalf("cancelled playback must not report completion, state %s", m.State())
	}
}

func TestMuteStrategyIgnoresSpeechDuringPlayback(t *testing.T) {
	sess, m, _, speaker := speakingSetup(t, turn.MuteStrategy{})
	q := runCapture(t, speech(time.Unix(200, 0), 20, 12), m, nil)
	if q.Len() != 0 {
		t.Fatalf("mute strategy must not capture during playback")
	}
	if speaker.Stops() != 0 || sess.Playback() != session.PlaybackSpeaking {
		t.Fatalf("playback must continue under mute strategy")
	}
}

func TestBargeInDuringSynthesizerStartup(t *testing.T) {
	sess := session.New(true)
	speaker := mock.NewSpeaker(false)
	pb := NewPlayback(speaker, sess, nil)
	m := turn.NewManager(sess, turn.BargeInStrategy{}, pb)
	pb.Bind(m)
	m.OnUserText()
	m.OnReplyReady(true)
	speaker.BeforeStart = m.OnUserSpeechStart

	ok, err := pb.Speak(context.Background(), "Hello there", sess.Epoch())
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if ok {
		t.Fatalf("playback interrupted during start-up must not report success")
	}
	if speaker.Playing() {
		t.Fatalf("assistant audio still playing after barge-in")
	}
	if sess.Playback() != session.PlaybackSilent {
		t.Fatalf("expected silent, got %v", sess.Playback())
	}
	if m.State() != turn.StateUserSpeaking {
		t.Fatalf("user should hold the floor, state %s", m.State())
	}
}

func TestSpeakForStaleTurnIsSkipped(t *testing.T) {
	sess := session.New(true)
	speaker := mock.NewSpeaker(false)
	pb := NewPlayback(speaker, sess, nil)
	m := turn.NewManager(sess, turn.BargeInStrategy{}, pb)
	pb.Bind(m)
	m.OnUserText()
	epoch := sess.Epoch()
	m.OnUserSpeechStart()

	ok, err := pb.Speak(context.Background(), "Hello there", epoch)
	if err != nil || ok {
		t.Fatalf("expected stale reply to stay silent, ok=%v err=%v", ok, err)
	}
	if len(speaker.Spoken()) != 0 || sess.Playback() != session.PlaybackSilent {
		t.Fatalf("synthesizer must not start for a superseded turn")
	}
}
