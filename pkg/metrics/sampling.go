package metrics

import (
	"math"
	"sync"
)

// alwaysKept are events an operator needs every instance of: each one marks
// a turn that went wrong or was cut short.
var alwaysKept = map[string]bool{
	EventBargeIn:          true,
	EventTranscribeFailed: true,
	EventReplyFailed:      true,
	EventRateLimit:        true,
	EventBreakerOpen:      true,
	EventBreakerClose:     true,
	EventBreakerDenied:    true,
}

// SamplingObserver forwards one in every N events of each name, where N is
// derived from the rate. Counting per name keeps quiet events from being
// starved by chatty ones such as frame_dropped. Failure and barge-in events
// bypass sampling.
type SamplingObserver struct {
	inner Observer
	every uint64

	mu     sync.Mutex
	counts map[string]uint64
}

// NewSamplingObserver keeps roughly rate of the sampled events. A rate of 0
// drops all of them; 1 or more keeps all of them.
func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	var every uint64
	switch {
	case rate <= 0:
		every = 0
	case rate >= 1:
		every = 1
	default:
		every = uint64(math.Round(1 / rate))
		if every == 0 {
			every = 1
		}
	}
	return &SamplingObserver{inner: inner, every: every, counts: make(map[string]uint64)}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if alwaysKept[ev.Name] || s.every == 1 {
		s.inner.RecordEvent(ev)
		return
	}
	if s.every == 0 {
		return
	}
	s.mu.Lock()
	s.counts[ev.Name]++
	n := s.counts[ev.Name]
	s.mu.Unlock()
	if n%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}
