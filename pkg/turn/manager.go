package turn

import "strings"

type State int

const (
	StateListenIdle State = iota
	StateUserSpeaking
	StateAwaitingReply
	StateAssistantSpeaking
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateListenIdle:
		return "LISTEN_IDLE"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateAssistantSpeaking:
		return "ASSISTANT_SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Strategy decides what the microphone does while the assistant talks.
// Exactly one strategy is active for the life of a session.
type Strategy interface {
	Name() string
	BargeInEnabled() bool
}

// Manager coordinates who holds the floor. Capture, transcription, the chat
// loop and playback each report their events here.
type Manager interface {
	// AcceptFrame reports whether captured audio should reach the detector.
	AcceptFrame() bool
	// OnUserSpeechStart is called when the detector hears speech. Playback in
	// progress is cancelled before the state changes.
	OnUserSpeechStart()
	// OnUtteranceDiscarded is called when detected speech was too short.
	OnUtteranceDiscarded()
	// OnUtterance is called when a finished utterance is queued.
	OnUtterance()
	// OnTranscribed is called with recognised text, before the reply request.
	OnTranscribed()
	// OnUserText is called for typed input. It always interrupts playback.
	OnUserText()
	// OnReplyReady is called once the full reply text is available.
	OnReplyReady(speak bool)
	// OnPlaybackDone is called when playback ends on its own.
	OnPlaybackDone()
	// OnTurnFailed returns to listening after a transcription or reply error.
	OnTurnFailed(reason string)
	AddListener(listener StateListener)
	State() State
	Strategy() Strategy
}

type BargeInStrategy struct{}

func (BargeInStrategy) Name() string         { return "barge_in" }
func (BargeInStrategy) BargeInEnabled() bool { return true }

type MuteStrategy struct{}

func (MuteStrategy) Name() string         { return "mute" }
func (MuteStrategy) BargeInEnabled() bool { return false }

// StrategyByName maps a config value to a strategy. Unknown names fall back
// to barge-in.
func StrategyByName(name string) Strategy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mute", "polite", "half_duplex":
		return MuteStrategy{}
	default:
		return BargeInStrategy{}
	}
}
