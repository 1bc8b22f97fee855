// Package whisper transcribes utterances by running a whisper.cpp style
// command-line recogniser on a temporary WAV file.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/aide/pkg/adapters/stt"
	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/utterance"
)

type Config struct {
	Binary   string        `mapstructure:"binary"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	TempDir  string        `mapstructure:"temp_dir"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Threads  int           `mapstructure:"threads"`
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "whisper-cli"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// ExitError reports a non-zero exit from the recogniser.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("whisper exited with code %d", e.Code)
	}
	return fmt.Sprintf("whisper exited with code %d: %s", e.Code, msg)
}

// runFunc executes the recogniser and returns stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

type Transcriber struct {
	cfg    Config
	logger *slog.Logger
	run    runFunc
}

func New(cfg Config, logger *slog.Logger) (*Transcriber, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errorsx.Wrap(errors.New("whisper: model path is required"), errorsx.ReasonConfigMissing)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{cfg: cfg, logger: logger, run: execRun}, nil
}

func (t *Transcriber) Name() string { return "whisper" }

// Args returns the recogniser arguments for a WAV file.
func (t *Transcriber) Args(wavPath string) []string {
	args := []string{"-m", t.cfg.Model, "-f", wavPath, "--no-timestamps", "-l", t.cfg.Language}
	if t.cfg.Threads > 0 {
		args = append(args, "-t", fmt.Sprint(t.cfg.Threads))
	}
	return args
}

func (t *Transcriber) Transcribe(ctx context.Context, u utterance.Utterance) (string, error) {
	wavPath := filepath.Join(t.cfg.TempDir, "aide_"+uuid.NewString()+".wav")
	if err := audio.WriteWAVFile(wavPath, u.PCM(), u.SampleRate(), 1); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	defer func() {
		if err := os.Remove(wavPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("whisper_temp_cleanup_failed", "path", wavPath, "error", err.Error())
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	stdout, stderr, err := t.run(runCtx, t.cfg.Binary, t.Args(wavPath)...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", errorsx.Wrap(&ExitError{Code: exitErr.ExitCode(), Stderr: string(stderr)}, errorsx.ReasonSTTExit)
		}
		return "", errorsx.Wrap(fmt.Errorf("whisper: run %s: %w", t.cfg.Binary, err), errorsx.ReasonSTTTranscribe)
	}

	text := CleanOutput(string(stdout))
	if len([]rune(text)) < 2 {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

var (
	timestampRe  = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}[.,]\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}[.,]\d{3}\]`)
	boilerRe     = regexp.MustCompile(`(?i)whisper|model`)
	nonSpeechRe  = regexp.MustCompile(`(?i)\[(blank_audio|silence|music|noise|inaudible)\]|\((silence|music|noise|inaudible)\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanOutput strips timestamps, tool boilerplate and non-speech markers
// from recogniser stdout and folds it onto a single line.
func CleanOutput(out string) string {
	out = timestampRe.ReplaceAllString(out, " ")
	out = nonSpeechRe.ReplaceAllString(out, " ")
	out = boilerRe.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "\r", "")
	out = strings.ReplaceAll(out, "\n", " ")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
