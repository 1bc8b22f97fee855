package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError is returned by backends that answered HTTP 429 or an
// equivalent quota error.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit reports whether err wraps a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type BreakerOptions struct {
	// Threshold is the number of consecutive counted failures that opens the
	// breaker. Default 3.
	Threshold int
	// Cooldown is how long the breaker stays open before one trial call is
	// let through. Default 30s.
	Cooldown time.Duration
	// Counts decides which errors are failures. Default IsRateLimit.
	Counts func(error) bool
	Now    func() time.Time
}

// CircuitBreaker fails calls fast after repeated backend failures. It never
// retries: once open, callers get an immediate error until the cooldown has
// passed, then a single trial call decides whether it closes again.
type CircuitBreaker struct {
	mu       sync.Mutex
	opts     BreakerOptions
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker counts rate limits only.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return NewCircuitBreakerWithOptions(BreakerOptions{Threshold: threshold, Cooldown: cooldown})
}

func NewCircuitBreakerWithOptions(opts BreakerOptions) *CircuitBreaker {
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Counts == nil {
		opts.Counts = IsRateLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CircuitBreaker{opts: opts}
}

// Allow reports whether a call may go out. While half open only the trial
// call is allowed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case BreakerOpen:
		if c.opts.Now().Sub(c.openedAt) < c.opts.Cooldown {
			return false
		}
		c.state = BreakerHalfOpen
		c.trial = true
		return true
	case BreakerHalfOpen:
		if c.trial {
			return false
		}
		c.trial = true
		return true
	default:
		return true
	}
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = BreakerClosed
	c.failures = 0
	c.trial = false
}

// OnError records a failed call. Errors the classifier does not count leave
// the failure streak alone but still end a trial call.
func (c *CircuitBreaker) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trial = false
	if err == nil || !c.opts.Counts(err) {
		return
	}
	c.failures++
	if c.state == BreakerHalfOpen || c.failures >= c.opts.Threshold {
		c.state = BreakerOpen
		c.openedAt = c.opts.Now()
	}
}

func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failures is the current streak of counted failures.
func (c *CircuitBreaker) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
