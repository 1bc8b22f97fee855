package vad

import (
	"testing"
	"time"

	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/frames"
)

const frameDur = 50 * time.Millisecond

var t0 = time.Unix(1700000000, 0)

func frameAt(offset time.Duration, amplitude float64) frames.AudioFrame {
	n := int(16000 * frameDur / time.Second)
	return frames.NewAudioFrame("test", t0.Add(offset).UnixNano(), audio.Bytes(audio.Tone(n, amplitude)), 16000, 1, nil)
}

func TestSubThresholdNeverProducesUtterance(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < 400; i++ {
		u, ev := d.ProcessFrame(frameAt(time.Duration(i)*frameDur, 0.019))
		if u != nil || ev != EventNone {
			t.Fatalf("frame %d: expected no event, got %s", i, ev)
		}
	}
	if d.InSpeech() {
		t.Fatalf("detector should be idle")
	}
}

func TestSpeechThenHangoverYieldsUtterance(t *testing.T) {
	d := New(DefaultConfig())
	_, ev := d.ProcessFrame(frameAt(0, 0.2))
	if ev != EventSpeechStart {
		t.Fatalf("expected speech start, got %s", ev)
	}
	// 1s of speech.
	for i := 1; i < 20; i++ {
		if u, ev := d.ProcessFrame(frameAt(time.Duration(i)*frameDur, 0.2)); u != nil || ev != EventNone {
			t.Fatalf("unexpected event during speech: %s", ev)
		}
	}
	lastLoud := 19 * frameDur
	ended := false
	for off := lastLoud + frameDur; off <= lastLoud+2*time.Second; off += frameDur {
		u, ev := d.ProcessFrame(frameAt(off, 0))
		if ev == EventSpeechEnd {
			if u == nil {
				t.Fatalf("expected utterance on speech end")
			}
			if off-lastLoud <= 450*time.Millisecond {
				t.Fatalf("finalised too early at gap %s", off-lastLoud)
			}
			if u.Duration() < time.Second {
				t.Fatalf("expected >= 1s of audio, got %s", u.Duration())
			}
			if !u.Start().Equal(t0) {
				t.Fatalf("unexpected start %s", u.Start())
			}
			ended = true
			break
		}
	}
	if !ended {
		t.Fatalf("expected an utterance after hangover")
	}
}

func TestHangoverBoundaryIsExact(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		d.ProcessFrame(frameAt(time.Duration(i)*frameDur, 0.2))
	}
	lastLoud := 9 * frameDur
	if u, ev := d.ProcessFrame(frameAt(lastLoud+450*time.Millisecond, 0)); u != nil || ev != EventNone {
		t.Fatalf("gap equal to hangover must not finalise, got %s", ev)
	}
	u, ev := d.ProcessFrame(frameAt(lastLoud+450*time.Millisecond+time.Millisecond, 0))
	if ev != EventSpeechEnd || u == nil {
		t.Fatalf("gap beyond hangover must finalise, got %s", ev)
	}
}

func TestShortBurstIsDiscarded(t *testing.T) {
	d := New(DefaultConfig())
	// 300ms of voice, below the 350ms minimum.
	for i := 0; i < 6; i++ {
		d.ProcessFrame(frameAt(time.Duration(i)*frameDur, 0.3))
	}
	for off := 6 * frameDur; off < 2*time.Second; off += frameDur {
		u, ev := d.ProcessFrame(frameAt(off, 0))
		if u != nil {
			t.Fatalf("short burst must not produce an utterance")
		}
		if ev == EventDiscarded {
			if d.InSpeech() {
				t.Fatalf("detector should reset after discard")
			}
			return
		}
	}
	t.Fatalf("expected discard event")
}

func TestMinBytesDiscard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinUtterance = time.Millisecond
	cfg.MinBytes = 1 << 20
	d := New(cfg)
	for i := 0; i < 10; i++ {
		d.ProcessFrame(frameAt(time.Duration(i)*frameDur, 0.3))
	}
	if u, ev := d.Flush(); u != nil || ev != EventDiscarded {
		t.Fatalf("expected discard for undersized buffer, got %s", ev)
	}
}

func TestMaxUtteranceCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUtterance = time.Second
	d := New(cfg)
	var ended bool
	for i := 0; i < 100; i++ {
		u, ev := d.ProcessFrame(frameAt(time.Duration(i)*frameDur, 0.3))
		if ev == EventSpeechEnd {
			if u == nil || u.Duration() > time.Second+2*frameDur {
				t.Fatalf("unexpected capped utterance")
			}
			ended = true
			break
		}
	}
	if !ended {
		t.Fatalf("continuous speech must be cut at the cap")
	}
}

func TestFlushIdleIsNoop(t *testing.T) {
	d := New(Config{})
	if u, ev := d.Flush(); u != nil || ev != EventNone {
		t.Fatalf("expected no-op flush")
	}
	if d.Config().Threshold != 0.02 {
		t.Fatalf("expected default threshold")
	}
}

func TestMinimumIgnoresHangoverTail(t *testing.T) {
	segment := func(voicedFrames int) (Event, time.Duration) {
		d := New(DefaultConfig())
		for i := 0; i < voicedFrames; i++ {
			d.ProcessFrame(frameAt(time.Duration(i)*frameDur, 0.3))
		}
		for off := time.Duration(voicedFrames) * frameDur; off < 3*time.Second; off += frameDur {
			u, ev := d.ProcessFrame(frameAt(off, 0))
			switch ev {
			case EventSpeechEnd:
				return ev, u.Duration()
			case EventDiscarded:
				return ev, 0
			}
		}
		return EventNone, 0
	}

	// 300ms voiced plus the tail is well over 350ms of audio, still too short.
	if ev, _ := segment(6); ev != EventDiscarded {
		t.Fatalf("expected 300ms voiced span to be discarded, got %s", ev)
	}
	ev, dur := segment(8)
	if ev != EventSpeechEnd {
		t.Fatalf("expected 400ms voiced span to be kept, got %s", ev)
	}
	if want := 400*time.Millisecond + DefaultConfig().Hangover; dur < want {
		t.Fatalf("expected duration to include the hangover tail (>= %s), got %s", want, dur)
	}
}
