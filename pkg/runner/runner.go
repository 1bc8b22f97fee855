package runner

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run around a session. A failing OnStart ends the session before it
// begins; OnStop still runs.
type Hooks struct {
	OnStart func() error
	OnStop  func()
}

// Drainer waits for in-flight work to finish before the stop hook runs.
type Drainer interface {
	Drain() error
}

type DrainerFunc func() error

func (f DrainerFunc) Drain() error { return f() }

const Version = "dev"

// PrintBanner writes the startup banner to w. A nil writer prints nothing.
func PrintBanner(w io.Writer, color bool) {
	if w == nil {
		return
	}
	tpl := "{{ .Title \"AIDE\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(w, true, color, bytes.NewBufferString(tpl))
}
