package mock

import (
	"context"
	"sync"
)

// Speaker records spoken text. Playback lasts until Finish or Stop is called,
// unless AutoFinish is set.
type Speaker struct {
	mu         sync.Mutex
	AutoFinish bool
	Err        error
	// BeforeStart runs inside Speak before playback begins. Tests use it to
	// interleave a barge-in with synthesizer start-up.
	BeforeStart func()
	spoken     []string
	stops      int
	done       chan struct{}
}

func NewSpeaker(autoFinish bool) *Speaker {
	return &Speaker{AutoFinish: autoFinish}
}

func (s *Speaker) Name() string { return "mock_tts" }

func (s *Speaker) Speak(ctx context.Context, text string) (<-chan struct{}, error) {
	if s.BeforeStart != nil {
		s.BeforeStart()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.spoken = append(s.spoken, text)
	done := make(chan struct{})
	if s.AutoFinish {
		close(done)
		return done, nil
	}
	s.done = done
	return done, nil
}

func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.closeLocked()
}

// Finish ends the current playback as if it completed normally.
func (s *Speaker) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Speaker) closeLocked() {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

// Playing reports whether a playback is running.
func (s *Speaker) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *Speaker) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
