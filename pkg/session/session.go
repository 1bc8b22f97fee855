// Package session holds the per-process conversational state shared by the
// capture goroutine, the transcription worker and the chat loop.
package session

import (
	"sync/atomic"

	"github.com/google/uuid"
)

type VoiceState int32

const (
	VoiceIdle VoiceState = iota
	VoiceSpeechDetected
	VoiceAwaitingTranscription
)

func (s VoiceState) String() string {
	switch s {
	case VoiceIdle:
		return "idle"
	case VoiceSpeechDetected:
		return "speech_detected"
	case VoiceAwaitingTranscription:
		return "awaiting_transcription"
	default:
		return "unknown"
	}
}

type PlaybackState int32

const (
	PlaybackSilent PlaybackState = iota
	PlaybackSpeaking
)

func (s PlaybackState) String() string {
	if s == PlaybackSpeaking {
		return "speaking"
	}
	return "silent"
}

// Session is safe for concurrent use. Every transition is a single atomic
// operation so readers never observe a half-applied change.
type Session struct {
	id       string
	voice    atomic.Int32
	playback atomic.Int32
	epoch    atomic.Uint64
	speakOut atomic.Bool
	unlocked atomic.Bool
}

func New(voiceOutput bool) *Session {
	s := &Session{id: uuid.NewString()}
	s.speakOut.Store(voiceOutput)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Voice() VoiceState { return VoiceState(s.voice.Load()) }

// CompareAndSwapVoice moves from one voice state to another only if the
// current state matches.
func (s *Session) CompareAndSwapVoice(from, to VoiceState) bool {
	return s.voice.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) SetVoice(v VoiceState) { s.voice.Store(int32(v)) }

func (s *Session) Playback() PlaybackState { return PlaybackState(s.playback.Load()) }

// StartPlayback marks playback as running. It reports false if it already was.
func (s *Session) StartPlayback() bool {
	return s.playback.CompareAndSwap(int32(PlaybackSilent), int32(PlaybackSpeaking))
}

// StopPlayback marks playback as silent. It reports true if playback was
// running, which callers use to decide whether to cancel the speaker.
func (s *Session) StopPlayback() bool {
	return s.playback.CompareAndSwap(int32(PlaybackSpeaking), int32(PlaybackSilent))
}

// Epoch identifies the current user turn. It advances whenever the user
// starts a new turn, so late replies can tell they were superseded.
func (s *Session) Epoch() uint64 { return s.epoch.Load() }

func (s *Session) NextEpoch() uint64 { return s.epoch.Add(1) }

func (s *Session) VoiceOutput() bool { return s.speakOut.Load() }

func (s *Session) SetVoiceOutput(on bool) { s.speakOut.Store(on) }

// ToggleVoiceOutput flips spoken replies and returns the new value.
func (s *Session) ToggleVoiceOutput() bool {
	for {
		cur := s.speakOut.Load()
		if s.speakOut.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

func (s *Session) Unlocked() bool { return s.unlocked.Load() }

func (s *Session) Unlock() { s.unlocked.Store(true) }
