package voice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harunnryd/aide/pkg/adapters/stt"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/redact"
	"github.com/harunnryd/aide/pkg/turn"
	"github.com/harunnryd/aide/pkg/utterance"
)

type WorkerOptions struct {
	Logger   *slog.Logger
	Observer metrics.Observer
	// Timeout bounds one transcription. Zero leaves it to the backend.
	Timeout time.Duration
}

// Worker transcribes queued utterances one at a time and publishes the text
// on Transcripts. Failures are logged and the utterance is dropped.
type Worker struct {
	queue       *utterance.Queue
	transcriber stt.Transcriber
	turns       turn.Manager
	out         chan string
	logger      *slog.Logger
	obs         metrics.Observer
	timeout     time.Duration
}

func NewWorker(queue *utterance.Queue, transcriber stt.Transcriber, turns turn.Manager, opts WorkerOptions) *Worker {
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &Worker{
		queue:       queue,
		transcriber: transcriber,
		turns:       turns,
		out:         make(chan string),
		logger:      logging.NewComponentLogger(opts.Logger, "transcriber"),
		obs:         opts.Observer,
		timeout:     opts.Timeout,
	}
}

// Transcripts delivers recognised text. It closes when Run returns.
func (w *Worker) Transcripts() <-chan string { return w.out }

// Run blocks until ctx is done or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.out)
	for {
		u, err := w.queue.Wait(ctx)
		if err != nil {
			if errors.Is(err, utterance.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		text, ok := w.transcribe(ctx, u)
		if !ok {
			continue
		}
		select {
		case w.out <- text:
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) transcribe(ctx context.Context, u utterance.Utterance) (string, bool) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := w.transcriber.Transcribe(ctx, u)
	elapsed := time.Since(start)
	if err != nil {
		reason := "no_speech"
		if !errors.Is(err, stt.ErrNoSpeech) {
			err = errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
			reason = string(errorsx.Reason(err))
			w.logger.Warn("transcribe_failed",
				"utterance_id", u.ID(),
				"provider", w.transcriber.Name(),
				"reason_code", reason,
				"error", err.Error(),
			)
		} else {
			w.logger.Debug("transcribe_empty", "utterance_id", u.ID())
		}
		metrics.Record(w.obs, metrics.EventTranscribeFailed, float64(elapsed.Milliseconds()), map[string]string{"reason": reason})
		w.turns.OnTurnFailed(reason)
		return "", false
	}
	w.logger.Info("transcribed",
		"utterance_id", u.ID(),
		"provider", w.transcriber.Name(),
		"latency_ms", elapsed.Milliseconds(),
		"text", redact.Text(text),
	)
	metrics.Record(w.obs, metrics.EventTranscribed, float64(elapsed.Milliseconds()), map[string]string{"provider": w.transcriber.Name()})
	w.turns.OnTranscribed()
	return text, true
}
