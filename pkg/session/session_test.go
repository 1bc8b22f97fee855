package session

import (
	"sync"
	"testing"
)

func TestPlaybackTransitions(t *testing.T) {
	s := New(true)
	if s.Playback() != PlaybackSilent {
		t.Fatalf("expected silent initially")
	}
	if !s.StartPlayback() {
		t.Fatalf("expected start to succeed")
	}
	if s.StartPlayback() {
		t.Fatalf("expected second start to report already speaking")
	}
	if !s.StopPlayback() {
		t.Fatalf("expected stop to report running playback")
	}
	if s.StopPlayback() {
		t.Fatalf("expected second stop to be a no-op")
	}
}

func TestConcurrentStopOnlyOneWins(t *testing.T) {
	s := New(true)
	s.StartPlayback()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.StopPlayback() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one stop to win, got %d", wins)
	}
}

func TestVoiceStateCAS(t *testing.T) {
	s := New(false)
	if !s.CompareAndSwapVoice(VoiceIdle, VoiceSpeechDetected) {
		t.Fatalf("expected idle -> speech detected")
	}
	if s.CompareAndSwapVoice(VoiceIdle, VoiceAwaitingTranscription) {
		t.Fatalf("expected stale CAS to fail")
	}
	if s.Voice().String() != "speech_detected" {
		t.Fatalf("unexpected state %s", s.Voice())
	}
}

func TestToggleAndEpoch(t *testing.T) {
	s := New(false)
	if !s.ToggleVoiceOutput() || !s.VoiceOutput() {
		t.Fatalf("expected voice output on after toggle")
	}
	if s.ToggleVoiceOutput() {
		t.Fatalf("expected voice output off after second toggle")
	}
	e := s.Epoch()
	if s.NextEpoch() != e+1 {
		t.Fatalf("expected epoch to advance")
	}
	if s.ID() == "" {
		t.Fatalf("expected session id")
	}
}
