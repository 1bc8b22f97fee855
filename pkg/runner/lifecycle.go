package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/aide/pkg/logging"
)

// ErrDrainTimeout is returned by Run and Stop when in-flight work did not
// finish within the drain timeout.
var ErrDrainTimeout = errors.New("drain timeout")

// Why a session ended, as reported by Cause.
const (
	CauseContext     = "context"
	CauseStop        = "stop"
	CauseStartFailed = "start_failed"
)

// LifecycleRunner starts the assistant's goroutines, waits for the session
// to end and shuts down in a fixed order: drain, then the stop hook. The
// stop hook always runs, including after a failed start, because it owns
// saving the transcript.
type LifecycleRunner struct {
	state   atomic.Int32
	hooks   Hooks
	drainer Drainer
	timeout time.Duration
	logger  *slog.Logger

	banner io.Writer
	color  bool

	stopCh   chan struct{}
	stopOnce sync.Once
	downOnce sync.Once
	cause    atomic.Value
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &LifecycleRunner{
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		logger:  logging.NewComponentLogger(nil, "lifecycle"),
		stopCh:  make(chan struct{}),
	}
	r.state.Store(int32(StateNew))
	return r
}

// SetBanner sets where the startup banner goes. It is off by default.
func (r *LifecycleRunner) SetBanner(w io.Writer, color bool) {
	r.banner = w
	r.color = color
}

func (r *LifecycleRunner) SetLogger(logger *slog.Logger) {
	r.logger = logging.NewComponentLogger(logger, "lifecycle")
}

// Run calls OnStart and blocks until ctx is done or Stop is called, then
// drains and calls OnStop. A start error is returned after OnStop ran.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return fmt.Errorf("runner is %s, not new", r.State())
	}
	PrintBanner(r.banner, r.color)
	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(); err != nil {
			r.logger.Error("lifecycle_start_failed", "error", err.Error())
			if stopErr := r.shutdown(CauseStartFailed); stopErr != nil {
				return errors.Join(fmt.Errorf("start: %w", err), stopErr)
			}
			return fmt.Errorf("start: %w", err)
		}
	}
	r.setState(StateRunning)

	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	select {
	case <-done:
		return r.shutdown(CauseContext)
	case <-r.stopCh:
		return r.shutdown(CauseStop)
	}
}

// Stop ends a running session and waits for shutdown to finish. It must
// not be called from work the drainer waits on.
func (r *LifecycleRunner) Stop() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	return r.shutdown(CauseStop)
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

// Cause reports why the session ended, or "" while it is still running.
func (r *LifecycleRunner) Cause() string {
	c, _ := r.cause.Load().(string)
	return c
}

func (r *LifecycleRunner) shutdown(cause string) error {
	r.downOnce.Do(func() {
		r.cause.Store(cause)
		r.setState(StateDraining)
		start := time.Now()
		if r.drainer != nil {
			r.stopErr = r.drain()
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.setState(StateStopped)
		attrs := []any{"cause", cause, "drain_ms", time.Since(start).Milliseconds()}
		if r.stopErr != nil {
			attrs = append(attrs, "error", r.stopErr.Error())
		}
		r.logger.Info("lifecycle_stopped", attrs...)
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	errCh := make(chan error, 1)
	go func() { errCh <- r.drainer.Drain() }()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		return nil
	case <-time.After(r.timeout):
		return ErrDrainTimeout
	}
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	r.state.Store(int32(s))
}
