package audio

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/frames"
)

// WebSocketSource accepts a relay client that streams binary PCM16 frames in
// the configured format. One client is served at a time; a new connection
// replaces the previous one.
type WebSocketSource struct {
	cfg      Config
	logger   *slog.Logger
	sink     *frameSink
	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	conn     *websocket.Conn

	draining atomic.Bool
}

func NewWebSocketSource(cfg Config, logger *slog.Logger) *WebSocketSource {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketSource{
		cfg:    cfg,
		logger: logger,
		sink:   newFrameSink(cfg.Buffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *WebSocketSource) Name() string                     { return "websocket" }
func (s *WebSocketSource) Frames() <-chan frames.AudioFrame { return s.sink.ch }
func (s *WebSocketSource) Dropped() int64                   { return s.sink.dropped.Load() }

// Addr returns the bound listener address once started.
func (s *WebSocketSource) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *WebSocketSource) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonAudioSource)
	}
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("audio_ws_server_error", "error", err.Error())
		}
	}()
	s.logger.Info("audio_source_started", "backend", s.Name(), "addr", ln.Addr().String(), "path", s.cfg.Path)
	return nil
}

func (s *WebSocketSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.logger.Info("audio_ws_client_connected", "remote", r.RemoteAddr)
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage || len(msg) < 2 {
			continue
		}
		s.sink.send(frames.NewAudioFrameFromPool("ws", time.Now().UnixNano(), msg, s.cfg.SampleRate, s.cfg.Channels, nil))
	}
}

func (s *WebSocketSource) Close() error {
	if !s.draining.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	server := s.server
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	var err error
	if server != nil {
		err = server.Close()
	}
	s.sink.close()
	return err
}
