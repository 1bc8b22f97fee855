package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver turns events into Prometheus series. Every event bumps
// aide_events_total; events with a latency value also feed a histogram.
type PrometheusObserver struct {
	reg     *prometheus.Registry
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// latencyEvents carry a millisecond duration in MetricsEvent.Value.
var latencyEvents = map[string]bool{
	EventTranscribed: true,
	EventReply:       true,
	EventToolCall:    true,
	EventBargeIn:     true,
}

func NewPrometheusObserver() *PrometheusObserver {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PrometheusObserver{
		reg: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aide_events_total",
			Help: "Assistant events by name",
		}, []string{"name"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aide_latency_ms",
			Help:    "Latency of transcription, replies, tool calls and barge-in handling",
			Buckets: prometheus.ExponentialBuckets(10, 1.8, 12),
		}, []string{"name"}),
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	p.events.WithLabelValues(ev.Name).Inc()
	if latencyEvents[ev.Name] && ev.Value > 0 {
		p.latency.WithLabelValues(ev.Name).Observe(ev.Value)
	}
}

// Registry exposes the underlying registry for tests and custom handlers.
func (p *PrometheusObserver) Registry() *prometheus.Registry { return p.reg }

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on ln until ctx is cancelled. The caller binds the
// listener so a taken port is reported before the session starts.
func (p *PrometheusObserver) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
