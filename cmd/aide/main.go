package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/harunnryd/aide/pkg/aide"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/logging"
)

func main() {
	configPath := flag.String("config", "aide.yaml", "path to the YAML config file")
	logLevel := flag.String("log-level", "", "override log_level (debug, info, warn, error)")
	voice := flag.Bool("voice", false, "listen on the microphone")
	flag.Parse()

	if err := run(*configPath, *logLevel, *voice, flagSet("voice")); err != nil {
		fmt.Fprintln(os.Stderr, "aide:", err)
		switch {
		case errorsx.HasReason(err, errorsx.ReasonTranscriptLoad):
			fmt.Fprintln(os.Stderr, "aide: the history file was left untouched; repair or move it and start again")
			os.Exit(2)
		case errorsx.Fatal(err):
			fmt.Fprintf(os.Stderr, "aide: fix %s (see aide.example.yaml) and start again\n", *configPath)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath, logLevel string, voice, voiceSet bool) error {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) && !flagSet("config") {
		configPath = ""
	}
	cfg, err := aide.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if voiceSet {
		cfg.Voice.Enabled = voice
	}

	logger, closeLog, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := aide.NewEngine(ctx, aide.EngineOptions{Config: cfg, Logger: logger})
	if err != nil {
		logger.Error("engine_init_failed", "error", err.Error())
		return err
	}
	return engine.Run(ctx)
}

func initLogger(cfg aide.Config) (*slog.Logger, func(), error) {
	if cfg.LogFile == "" {
		return logging.InitLogger(cfg.LogLevel, cfg.LogFormat), func() {}, nil
	}
	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	return logging.InitLoggerTo(f, cfg.LogLevel, cfg.LogFormat), func() { _ = f.Close() }, nil
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
