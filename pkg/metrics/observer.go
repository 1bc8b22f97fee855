package metrics

import "time"

// Event names recorded by the assistant.
const (
	EventFrameDropped       = "frame_dropped"
	EventSpeechStart        = "speech_start"
	EventUtteranceQueued    = "utterance_queued"
	EventUtteranceDiscarded = "utterance_discarded"
	EventTranscribed        = "transcribed"
	EventTranscribeFailed   = "transcribe_failed"
	EventBargeIn            = "barge_in"
	EventReply              = "reply"
	EventReplyFailed        = "reply_failed"
	EventToolCall           = "tool_call"
	EventRateLimit          = "rate_limit"
	EventBreakerOpen        = "breaker_open"
	EventBreakerClose       = "breaker_close"
	EventBreakerDenied      = "breaker_denied"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record is a nil-safe helper for one-off events.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

// MultiObserver fans an event out to several observers.
type MultiObserver struct {
	list []Observer
}

func NewMultiObserver(list ...Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
