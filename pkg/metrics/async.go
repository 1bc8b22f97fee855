package metrics

import (
	"sync"
	"sync/atomic"
)

// SessionTag is the tag every event leaving an AsyncObserver carries, so
// JSONL lines from several runs appended to one file can be told apart.
const SessionTag = "session_id"

type AsyncOptions struct {
	Buffer    int
	SessionID string
}

// AsyncObserver hands events to a background goroutine so the capture and
// chat goroutines never block on a slow sink. Events that do not fit in the
// buffer are dropped and counted. Close delivers what is buffered before it
// returns.
type AsyncObserver struct {
	inner     Observer
	sessionID string
	events    chan MetricsEvent
	dropped   atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncObserver(inner Observer, opts AsyncOptions) *AsyncObserver {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	a := &AsyncObserver{
		inner:     inner,
		sessionID: opts.SessionID,
		events:    make(chan MetricsEvent, opts.Buffer),
		done:      make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	ev = a.tag(ev)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

// tag copies the caller's tags; the map may be shared with other events.
func (a *AsyncObserver) tag(ev MetricsEvent) MetricsEvent {
	if a.sessionID == "" {
		return ev
	}
	if _, ok := ev.Tags[SessionTag]; ok {
		return ev
	}
	tags := make(map[string]string, len(ev.Tags)+1)
	for k, v := range ev.Tags {
		tags[k] = v
	}
	tags[SessionTag] = a.sessionID
	ev.Tags = tags
	return ev
}

func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close stops intake, waits for buffered events to reach the sink and then
// flushes it when it buffers on its own.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.events)
	a.mu.Unlock()
	<-a.done
	if f, ok := a.inner.(Flusher); ok {
		_ = f.Flush()
	}
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for ev := range a.events {
		a.inner.RecordEvent(ev)
	}
}
