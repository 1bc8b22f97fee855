// Package ossay speaks text through the operating system's synthesizer
// command (espeak, say or spd-say).
package ossay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/logging"
)

type Config struct {
	Command string   `mapstructure:"command"`
	Voice   string   `mapstructure:"voice"`
	Rate    int      `mapstructure:"rate"`
	Args    []string `mapstructure:"args"`
}

// DefaultCommand picks the usual synthesizer for the platform.
func DefaultCommand() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

type Speaker struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	current *exec.Cmd
}

func New(cfg Config, logger *slog.Logger) *Speaker {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{cfg: cfg, logger: logging.NewComponentLogger(logger, "ossay")}
}

func (s *Speaker) Name() string { return "os:" + filepath.Base(s.cfg.Command) }

// Args builds the synthesizer command line for text.
func (s *Speaker) Args(text string) []string {
	args := append([]string(nil), s.cfg.Args...)
	switch filepath.Base(s.cfg.Command) {
	case "espeak", "espeak-ng":
		if s.cfg.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(s.cfg.Rate))
		}
		if s.cfg.Voice != "" {
			args = append(args, "-v", s.cfg.Voice)
		}
	case "say":
		if s.cfg.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(s.cfg.Rate))
		}
		if s.cfg.Voice != "" {
			args = append(args, "-v", s.cfg.Voice)
		}
	case "spd-say":
		args = append(args, "--wait")
		if s.cfg.Voice != "" {
			args = append(args, "-t", s.cfg.Voice)
		}
	}
	return append(args, "--", text)
}

// Speak starts the synthesizer and returns immediately. Any playback still
// running is stopped first.
func (s *Speaker) Speak(ctx context.Context, text string) (<-chan struct{}, error) {
	s.Stop()
	cmd := exec.Command(s.cfg.Command, s.Args(text)...)
	if err := cmd.Start(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("ossay: start %s: %w", s.cfg.Command, err), errorsx.ReasonTTSSpeak)
	}
	s.mu.Lock()
	s.current = cmd
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := cmd.Wait()
		s.mu.Lock()
		if s.current == cmd {
			s.current = nil
		}
		s.mu.Unlock()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.logger.Warn("tts_wait_failed", "error", err.Error())
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.stopCmd(cmd)
		case <-done:
		}
	}()
	return done, nil
}

func (s *Speaker) Stop() {
	s.mu.Lock()
	cmd := s.current
	s.current = nil
	s.mu.Unlock()
	s.stopCmd(cmd)
}

func (s *Speaker) stopCmd(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Debug("tts_kill_failed", "error", err.Error())
	}
}
