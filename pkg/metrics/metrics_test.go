package metrics

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusObserverCountsEvents(t *testing.T) {
	p := NewPrometheusObserver()
	p.RecordEvent(MetricsEvent{Name: EventBargeIn, Value: 42, Time: time.Now()})
	p.RecordEvent(MetricsEvent{Name: EventBargeIn, Time: time.Now()})
	p.RecordEvent(MetricsEvent{Name: EventUtteranceDiscarded, Time: time.Now()})

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	if !strings.Contains(text, `aide_events_total{name="barge_in"} 2`) {
		t.Fatalf("expected barge_in counter, got:\n%s", text)
	}
	if !strings.Contains(text, `aide_latency_ms_count{name="barge_in"} 1`) {
		t.Fatalf("expected one latency sample, got:\n%s", text)
	}
}

func TestSamplingObserverRate(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.5)
	for i := 0; i < 10; i++ {
		s.RecordEvent(MetricsEvent{Name: EventSpeechStart})
	}
	if got := mem.Count(EventSpeechStart); got != 5 {
		t.Fatalf("expected 5 sampled events, got %d", got)
	}
}

func TestAsyncObserverTagsSessionAndDrainsOnClose(t *testing.T) {
	mem := NewMemoryObserver()
	a := NewAsyncObserver(mem, AsyncOptions{Buffer: 4, SessionID: "sess-1"})
	shared := map[string]string{"reason": "barge_in"}
	a.RecordEvent(MetricsEvent{Name: EventReply, Tags: shared})
	a.RecordEvent(MetricsEvent{Name: EventBargeIn, Tags: map[string]string{SessionTag: "other"}})
	a.Close()

	if len(mem.Events) != 2 {
		t.Fatalf("expected buffered events delivered by Close, got %d", len(mem.Events))
	}
	if got := mem.Events[0].Tags[SessionTag]; got != "sess-1" {
		t.Fatalf("expected session tag, got %q", got)
	}
	if _, ok := shared[SessionTag]; ok {
		t.Fatalf("caller's tag map must not be modified")
	}
	if got := mem.Events[1].Tags[SessionTag]; got != "other" {
		t.Fatalf("explicit session tag must win, got %q", got)
	}
	a.RecordEvent(MetricsEvent{Name: EventReply})
	a.Close()
	if mem.Count(EventReply) != 1 {
		t.Fatalf("events after Close must be ignored")
	}
}

func TestAsyncObserverCountsDrops(t *testing.T) {
	block := make(chan struct{})
	a := NewAsyncObserver(blockingObserver(block), AsyncOptions{Buffer: 1})
	for i := 0; i < 5; i++ {
		a.RecordEvent(MetricsEvent{Name: EventFrameDropped})
	}
	if a.Dropped() < 3 {
		t.Fatalf("expected overflow to be counted, got %d", a.Dropped())
	}
	close(block)
	a.Close()
}

type blockingObserver chan struct{}

func (b blockingObserver) RecordEvent(MetricsEvent) { <-b }

func TestSamplingKeepsFailuresAndBargeIns(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.1)
	for i := 0; i < 10; i++ {
		s.RecordEvent(MetricsEvent{Name: EventBargeIn})
		s.RecordEvent(MetricsEvent{Name: EventTranscribeFailed})
		s.RecordEvent(MetricsEvent{Name: EventFrameDropped})
	}
	if mem.Count(EventBargeIn) != 10 || mem.Count(EventTranscribeFailed) != 10 {
		t.Fatalf("barge-in and failure events must never be sampled away")
	}
	if mem.Count(EventFrameDropped) != 1 {
		t.Fatalf("expected 1 in 10 frame drops, got %d", mem.Count(EventFrameDropped))
	}

	none := NewMemoryObserver()
	off := NewSamplingObserver(none, 0)
	off.RecordEvent(MetricsEvent{Name: EventSpeechStart})
	off.RecordEvent(MetricsEvent{Name: EventReplyFailed})
	if none.Count(EventSpeechStart) != 0 || none.Count(EventReplyFailed) != 1 {
		t.Fatalf("rate 0 drops sampled events only")
	}
}

func TestJSONLObserverWritesLine(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLObserver(&buf).RecordEvent(MetricsEvent{Name: EventToolCall, Tags: map[string]string{"tool": "add"}})
	if !strings.Contains(buf.String(), `"tool":"add"`) {
		t.Fatalf("expected tag in output, got %s", buf.String())
	}
}
