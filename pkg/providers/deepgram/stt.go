// Package deepgram transcribes utterances with Deepgram's pre-recorded
// REST API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/harunnryd/aide/pkg/adapters/stt"
	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/resilience"
	"github.com/harunnryd/aide/pkg/utterance"
)

type Config struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	Language    string `mapstructure:"language"`
	SmartFormat bool   `mapstructure:"smart_format"`
	Host        string `mapstructure:"host"`
}

// fromStreamFunc is the SDK call, kept behind a func so tests can stub it.
type fromStreamFunc func(ctx context.Context, src io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error)

type Transcriber struct {
	cfg        Config
	logger     *slog.Logger
	fromStream fromStreamFunc
}

func New(cfg Config, logger *slog.Logger) (*Transcriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errorsx.Wrap(errors.New("deepgram: api_key is required"), errorsx.ReasonConfigMissing)
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{Host: cfg.Host})
	dg := api.New(c)
	return &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "deepgram_stt"),
		fromStream: func(ctx context.Context, src io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
			return dg.FromStream(ctx, src, opts)
		},
	}, nil
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Transcribe(ctx context.Context, u utterance.Utterance) (string, error) {
	var wav bytes.Buffer
	if err := audio.WriteWAV(&wav, u.PCM(), u.SampleRate(), 1); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    t.cfg.Language,
		SmartFormat: t.cfg.SmartFormat,
		Punctuate:   true,
	}
	res, err := t.fromStream(ctx, &wav, opts)
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			return "", errorsx.Wrap(resilience.RateLimitError{Provider: "deepgram", Message: err.Error()}, errorsx.ReasonSTTRateLimit)
		}
		return "", errorsx.Wrap(fmt.Errorf("deepgram: transcribe: %w", err), errorsx.ReasonSTTTranscribe)
	}
	text, err := transcriptOf(res)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	t.logger.Debug("deepgram_transcribed", "utterance_id", u.ID(), "chars", len(text))
	if len([]rune(text)) < 2 {
		return "", stt.ErrNoSpeech
	}
	return text, nil
}

type prerecordedResult struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// transcriptOf reads the first alternative of the first channel. It goes
// through JSON so it does not depend on the SDK's struct layout.
func transcriptOf(res any) (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("deepgram: encode response: %w", err)
	}
	var out prerecordedResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Results.Channels[0].Alternatives[0].Transcript), nil
}
