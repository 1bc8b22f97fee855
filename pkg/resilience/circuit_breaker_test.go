package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestCircuitBreakerIgnoresNonRateLimit(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(errors.New("timeout"))
	if !cb.Allow() {
		t.Fatalf("non rate-limit errors must not open the breaker")
	}
	if cb.Failures() != 0 {
		t.Fatalf("uncounted error changed the streak")
	}
}

func TestCircuitBreakerOpensAndResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 20*time.Millisecond)
	wrapped := fmt.Errorf("search: %w", RateLimitError{Provider: "google"})
	if !IsRateLimit(wrapped) {
		t.Fatalf("expected wrapped rate limit to be detected")
	}
	cb.OnError(wrapped)
	if !cb.Allow() {
		t.Fatalf("breaker opened before threshold")
	}
	cb.OnError(wrapped)
	if cb.Allow() {
		t.Fatalf("expected breaker to be open")
	}
	time.Sleep(30 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("expected a trial call after cooldown")
	}
	cb.OnSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after successful trial, got %s", cb.State())
	}
	if (RateLimitError{}).Error() != "rate limit" {
		t.Fatalf("unexpected default message")
	}
}

func TestCircuitBreakerHalfOpenAllowsOneTrial(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	boom := errors.New("backend down")
	cb := NewCircuitBreakerWithOptions(BreakerOptions{
		Threshold: 1,
		Cooldown:  time.Second,
		Counts:    func(err error) bool { return errors.Is(err, boom) },
		Now:       clock.Now,
	})

	cb.OnError(boom)
	if cb.State() != BreakerOpen || cb.Allow() {
		t.Fatalf("expected open breaker to deny calls")
	}
	clock.now = clock.now.Add(time.Second)
	if !cb.Allow() {
		t.Fatalf("expected trial after cooldown")
	}
	if cb.Allow() {
		t.Fatalf("only one trial call may run while half open")
	}
	cb.OnError(boom)
	if cb.State() != BreakerOpen {
		t.Fatalf("failed trial must reopen, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatalf("reopened breaker must wait a full cooldown")
	}
	clock.now = clock.now.Add(time.Second)
	if !cb.Allow() {
		t.Fatalf("expected second trial")
	}
	cb.OnError(errors.New("bad request"))
	if !cb.Allow() {
		t.Fatalf("an uncounted error ends the trial without reopening")
	}
}
