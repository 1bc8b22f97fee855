package aide

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/harunnryd/aide/pkg/access"
	"github.com/harunnryd/aide/pkg/adapters/tts"
	"github.com/harunnryd/aide/pkg/assistant"
	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/chat"
	"github.com/harunnryd/aide/pkg/configutil"
	"github.com/harunnryd/aide/pkg/conversation"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/frames"
	"github.com/harunnryd/aide/pkg/llm"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/pdf"
	"github.com/harunnryd/aide/pkg/plugins"
	"github.com/harunnryd/aide/pkg/redact"
	"github.com/harunnryd/aide/pkg/runner"
	"github.com/harunnryd/aide/pkg/search"
	"github.com/harunnryd/aide/pkg/session"
	"github.com/harunnryd/aide/pkg/turn"
	"github.com/harunnryd/aide/pkg/utterance"
	"github.com/harunnryd/aide/pkg/vad"
	"github.com/harunnryd/aide/pkg/voice"
)

// Engine owns one interactive session: the console loop, the optional voice
// pipeline and the persisted transcript.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	out    io.Writer

	sess      *session.Session
	turns     turn.Manager
	store     *conversation.JSONStore
	assistant *assistant.Assistant
	loop      *chat.Loop
	playback  *voice.Playback

	source  audio.Source
	queue   *utterance.Queue
	capture *voice.Capture
	worker  *voice.Worker

	prom     *metrics.PrometheusObserver
	asyncObs *metrics.AsyncObserver
	closers  []io.Closer

	wg      sync.WaitGroup
	loopErr error
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Plugins are registered after the built-in ones.
	Plugins []plugins.Plugin
	// Searcher replaces the Google backend built from config.
	Searcher search.Searcher
	// Source replaces the configured audio backend.
	Source audio.Source
	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviderRegistry()
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)
	redact.SetMaxLen(cfg.Privacy.MaxLogChars)

	e := &Engine{cfg: cfg, logger: logging.NewComponentLogger(logger, "engine"), out: opts.Out}
	// Voice output is switched on once a speaker exists.
	e.sess = session.New(false)
	obs, err := e.buildObserver(logger)
	if err != nil {
		return nil, err
	}

	backend, err := providers.BuildLLM(cfg.Vendors.LLM)
	if err != nil {
		e.closeAll()
		return nil, fmt.Errorf("llm: %w", err)
	}
	breaker := llm.NewCircuitBreakerAdapter(backend, llm.NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown))
	breaker.SetObserver(obs)

	var speaker tts.Speaker
	if cfg.Vendors.TTS.Provider != "" {
		speaker, err = providers.BuildTTS(cfg.Vendors.TTS, logger)
		if err != nil {
			e.closeAll()
			return nil, fmt.Errorf("tts: %w", err)
		}
	}
	e.sess.SetVoiceOutput(cfg.Voice.Output && speaker != nil)
	var emitter turn.InterruptEmitter = turn.EmitterFunc(func(frames.Frame) error { return nil })
	if speaker != nil {
		e.playback = voice.NewPlayback(speaker, e.sess, logger)
		emitter = e.playback
	}
	e.turns = turn.NewManagerWithOptions(e.sess, cfg.Strategy(), emitter, turn.ManagerOptions{Logger: logger, Observer: obs})
	if e.playback != nil {
		e.playback.Bind(e.turns)
	}

	searcher := opts.Searcher
	if searcher == nil && cfg.Search.Enabled {
		g, err := search.NewGoogle(ctx, cfg.Search.Config)
		if err != nil {
			e.closeAll()
			return nil, fmt.Errorf("search: %w", err)
		}
		searcher = g
	}

	loader := pdf.NewLoader(cfg.Plugins.PDF.BaseDir, cfg.Plugins.PDF.MaxChars)
	registry, err := e.buildPlugins(cfg, loader, searcher, opts.Plugins)
	if err != nil {
		e.closeAll()
		return nil, err
	}

	e.store = conversation.NewJSONStore(conversation.NewFileStore(cfg.HistoryFile))
	transcript, isNew, err := e.store.Load(configutil.StringValue(cfg.SystemPrompt, assistant.DefaultSystemPrompt))
	if err != nil {
		e.closeAll()
		return nil, err
	}
	e.logger.Info("transcript_loaded", "file", cfg.HistoryFile, "new", isNew, "turns", transcript.Len())

	e.assistant = assistant.New(breaker, transcript, registry, searcher, assistant.Options{
		MaxToolRounds:   cfg.Tools.MaxRounds,
		ToolConcurrency: cfg.Tools.Concurrency,
		ToolTimeout:     cfg.Tools.Timeout,
		Logger:          logger,
		Observer:        obs,
	})

	var transcripts <-chan string
	if cfg.Voice.Enabled {
		if err := e.buildVoice(cfg, providers, opts.Source, logger, obs); err != nil {
			e.closeAll()
			return nil, err
		}
		transcripts = e.worker.Transcripts()
	}

	deps := chat.Deps{
		Assistant: e.assistant,
		Session:   e.sess,
		Turns:     e.turns,
		PDF:       loader,
		Search:    searcher,
		Gate:      access.NewGate(cfg.Access.Password, cfg.Access.MaxAttempts),
		Voice:     transcripts,
		In:        opts.In,
		Out:       opts.Out,
		Logger:    logger,
	}
	if e.playback != nil {
		deps.Speaker = e.playback
	}
	e.loop = chat.NewLoop(cfg.Chat, deps)

	e.logger.Info("aide_init",
		"session_id", e.sess.ID(),
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"voice_input", cfg.Voice.Enabled,
		"voice_output", e.sess.VoiceOutput(),
		"turn_policy", e.turns.Strategy().Name(),
		"plugins", registry.Plugins(),
	)
	return e, nil
}

func (e *Engine) buildObserver(logger *slog.Logger) (metrics.Observer, error) {
	cfg := e.cfg.Metrics
	list := []metrics.Observer{metrics.NewLoggerObserver(logging.NewComponentLogger(logger, "metrics"))}
	if cfg.Addr != "" {
		e.prom = metrics.NewPrometheusObserver()
		list = append(list, e.prom)
	}
	if cfg.JSONL != "" {
		if dir := filepath.Dir(cfg.JSONL); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("metrics jsonl: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.JSONL, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("metrics jsonl: %w", err)
		}
		e.closers = append(e.closers, f)
		list = append(list, metrics.NewJSONLObserver(f))
	}
	var obs metrics.Observer = metrics.NewMultiObserver(list...)
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		obs = metrics.NewSamplingObserver(obs, cfg.SampleRate)
	}
	e.asyncObs = metrics.NewAsyncObserver(obs, metrics.AsyncOptions{Buffer: cfg.AsyncBuffer, SessionID: e.sess.ID()})
	return e.asyncObs, nil
}

func (e *Engine) buildPlugins(cfg Config, loader *pdf.Loader, searcher search.Searcher, extra []plugins.Plugin) (*plugins.Registry, error) {
	list := []plugins.Plugin{
		plugins.Calculator{},
		plugins.NewTasks(plugins.NewTaskStore(cfg.Plugins.Tasks.File)),
		plugins.NewTime(cfg.Plugins.Time),
		plugins.NewPDF(loader),
	}
	if searcher != nil {
		list = append(list, plugins.NewWebSearch(searcher))
	}
	if cfg.Plugins.SMS.Enabled() {
		sms, err := plugins.NewSMS(cfg.Plugins.SMS)
		if err != nil {
			return nil, fmt.Errorf("plugins.sms: %w", err)
		}
		list = append(list, sms)
	}
	list = append(list, extra...)
	registry, err := plugins.NewRegistry(list...)
	if err != nil {
		return nil, fmt.Errorf("plugins: %w", err)
	}
	return registry, nil
}

func (e *Engine) buildVoice(cfg Config, providers *ProviderRegistry, source audio.Source, logger *slog.Logger, obs metrics.Observer) error {
	transcriber, err := providers.BuildSTT(cfg.Vendors.STT, logger)
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	if source == nil {
		source, err = audio.NewSource(cfg.Audio, logger)
		if err != nil {
			return err
		}
	}
	e.source = source
	e.queue = utterance.NewQueue()
	e.capture = voice.NewCapture(source, vad.New(cfg.VAD), e.queue, e.turns, voice.CaptureOptions{Logger: logger, Observer: obs})
	e.worker = voice.NewWorker(e.queue, transcriber, e.turns, voice.WorkerOptions{
		Logger:   logger,
		Observer: obs,
		Timeout:  cfg.Voice.TranscribeTimeout,
	})
	return nil
}

// Session exposes the shared session state.
func (e *Engine) Session() *session.Session { return e.sess }

// Transcript is the live conversation.
func (e *Engine) Transcript() *conversation.Transcript { return e.assistant.Transcript() }

// Run blocks until the user ends the session or ctx is done. The transcript
// is saved on the way out.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lr := runner.NewLifecycleRunner(runner.DrainerFunc(func() error {
		e.wg.Wait()
		return nil
	}), runner.Hooks{
		OnStart: func() error { return e.start(ctx, cancel) },
		OnStop:  e.shutdown,
	}, 10*time.Second)
	lr.SetBanner(e.out, !e.cfg.Chat.NoColor)
	lr.SetLogger(e.logger)
	if err := lr.Run(ctx); err != nil {
		return err
	}
	return e.loopErr
}

func (e *Engine) start(ctx context.Context, cancel context.CancelFunc) error {
	if e.prom != nil {
		ln, err := net.Listen("tcp", e.cfg.Metrics.Addr)
		if err != nil {
			return errorsx.Errorf(errorsx.ReasonConfigInvalid, "metrics.addr %q: %w", e.cfg.Metrics.Addr, err)
		}
		go func() {
			if err := e.prom.Serve(ctx, ln); err != nil {
				e.logger.Warn("metrics_server_failed", "addr", e.cfg.Metrics.Addr, "error", err.Error())
			}
		}()
		e.logger.Info("metrics_listening", "addr", e.cfg.Metrics.Addr)
	}
	if e.capture != nil {
		e.wg.Add(2)
		go func() {
			defer e.wg.Done()
			if err := e.capture.Run(ctx); err != nil {
				e.logger.Error("capture_failed", "error", err.Error())
			}
		}()
		go func() {
			defer e.wg.Done()
			if err := e.worker.Run(ctx); err != nil {
				e.logger.Error("worker_failed", "error", err.Error())
			}
		}()
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		err := e.loop.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.loopErr = err
		}
	}()
	e.logger.Info("engine_ready", "session_id", e.sess.ID())
	return nil
}

func (e *Engine) shutdown() {
	if e.playback != nil {
		e.playback.Stop()
	}
	if e.queue != nil {
		e.queue.Close()
	}
	if e.source != nil {
		if err := e.source.Close(); err != nil {
			e.logger.Warn("audio_close_failed", "error", err.Error())
		}
	}
	if err := e.store.Save(e.assistant.Transcript()); err != nil {
		e.logger.Error("transcript_save_failed", "error", err.Error())
	} else {
		e.logger.Info("transcript_saved", "file", e.cfg.HistoryFile, "turns", e.assistant.Transcript().Len())
	}
	e.closeAll()
	e.logger.Info("shutdown", "goroutines", runtime.NumGoroutine())
}

func (e *Engine) closeAll() {
	if e.asyncObs != nil {
		e.asyncObs.Close()
	}
	for _, c := range e.closers {
		_ = c.Close()
	}
	e.closers = nil
}
