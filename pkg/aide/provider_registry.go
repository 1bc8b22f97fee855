package aide

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/aide/pkg/adapters/stt"
	"github.com/harunnryd/aide/pkg/adapters/tts"
	"github.com/harunnryd/aide/pkg/configutil"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/llm"
	"github.com/harunnryd/aide/pkg/providers/deepgram"
	"github.com/harunnryd/aide/pkg/providers/mock"
	"github.com/harunnryd/aide/pkg/providers/openai"
	"github.com/harunnryd/aide/pkg/providers/ossay"
	"github.com/harunnryd/aide/pkg/providers/whisper"
)

const openAIBaseURL = "https://api.openai.com/v1"

type STTFactory func(cfg VendorConfig, logger *slog.Logger) (stt.Transcriber, error)
type TTSFactory func(cfg VendorConfig, logger *slog.Logger) (tts.Speaker, error)
type LLMFactory func(cfg VendorConfig) (llm.LLMAdapter, error)

// ProviderRegistry maps vendor names from config to backend constructors.
// Names are case-insensitive.
type ProviderRegistry struct {
	stt map[string]STTFactory
	tts map[string]TTSFactory
	llm map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt: make(map[string]STTFactory),
		tts: make(map[string]TTSFactory),
		llm: make(map[string]LLMFactory),
	}
}

// DefaultProviderRegistry has every built-in backend registered.
func DefaultProviderRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterSTT("whisper", buildWhisper)
	r.RegisterSTT("deepgram", buildDeepgram)
	r.RegisterSTT("mock", buildMockSTT)
	for _, name := range []string{"os", "say", "espeak"} {
		r.RegisterTTS(name, buildOSSay(name))
	}
	r.RegisterTTS("mock", buildMockTTS)
	r.RegisterLLM("openai", buildOpenAI(openAIBaseURL, true))
	r.RegisterLLM("ollama", buildOpenAI(openai.DefaultBaseURL, false))
	r.RegisterLLM("mock", buildMockLLM)
	return r
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[normalizeName(name)] = factory
}

func (r *ProviderRegistry) BuildSTT(cfg VendorConfig, logger *slog.Logger) (stt.Transcriber, error) {
	fn := r.stt[normalizeName(cfg.Provider)]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("stt provider not registered: %s (have %s)", cfg.Provider, keys(r.stt)), errorsx.ReasonConfigInvalid)
	}
	return fn(cfg, logger)
}

func (r *ProviderRegistry) BuildTTS(cfg VendorConfig, logger *slog.Logger) (tts.Speaker, error) {
	fn := r.tts[normalizeName(cfg.Provider)]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("tts provider not registered: %s (have %s)", cfg.Provider, keys(r.tts)), errorsx.ReasonConfigInvalid)
	}
	return fn(cfg, logger)
}

func (r *ProviderRegistry) BuildLLM(cfg VendorConfig) (llm.LLMAdapter, error) {
	fn := r.llm[normalizeName(cfg.Provider)]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("llm provider not registered: %s (have %s)", cfg.Provider, keys(r.llm)), errorsx.ReasonConfigInvalid)
	}
	return fn(cfg)
}

func buildWhisper(cfg VendorConfig, logger *slog.Logger) (stt.Transcriber, error) {
	if err := validateSettings("vendors.stt.settings", cfg.Settings, configutil.Schema{
		Types: map[string]configutil.Kind{
			"binary":   configutil.KindString,
			"model":    configutil.KindString,
			"language": configutil.KindString,
			"temp_dir": configutil.KindString,
			"timeout":  configutil.KindDuration,
			"threads":  configutil.KindInt,
		},
	}); err != nil {
		return nil, err
	}
	var settings whisper.Config
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return whisper.New(settings, logger)
}

func buildDeepgram(cfg VendorConfig, logger *slog.Logger) (stt.Transcriber, error) {
	if err := validateSettings("vendors.stt.settings", cfg.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Types: map[string]configutil.Kind{
			"api_key":      configutil.KindString,
			"model":        configutil.KindString,
			"language":     configutil.KindString,
			"smart_format": configutil.KindBool,
			"host":         configutil.KindString,
		},
	}); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigMissing)
	}
	var settings deepgram.Config
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return deepgram.New(settings, logger)
}

type mockSTTSettings struct {
	Transcripts []string `mapstructure:"transcripts"`
}

func buildMockSTT(cfg VendorConfig, _ *slog.Logger) (stt.Transcriber, error) {
	if err := validateSettings("vendors.stt.settings", cfg.Settings, configutil.Schema{
		Types: map[string]configutil.Kind{"transcripts": configutil.KindStringList},
	}); err != nil {
		return nil, err
	}
	var settings mockSTTSettings
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return mock.NewTranscriber(mock.STTConfig{Transcripts: settings.Transcripts}), nil
}

func buildOSSay(name string) TTSFactory {
	return func(cfg VendorConfig, logger *slog.Logger) (tts.Speaker, error) {
		if err := validateSettings("vendors.tts.settings", cfg.Settings, configutil.Schema{
			Types: map[string]configutil.Kind{
				"command": configutil.KindString,
				"voice":   configutil.KindString,
				"rate":    configutil.KindInt,
				"args":    configutil.KindStringList,
			},
		}); err != nil {
			return nil, err
		}
		var settings ossay.Config
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.Command == "" && name != "os" {
			settings.Command = name
		}
		return ossay.New(settings, logger), nil
	}
}

type mockTTSSettings struct {
	AutoFinish *bool `mapstructure:"auto_finish"`
}

func buildMockTTS(cfg VendorConfig, _ *slog.Logger) (tts.Speaker, error) {
	if err := validateSettings("vendors.tts.settings", cfg.Settings, configutil.Schema{
		Types: map[string]configutil.Kind{"auto_finish": configutil.KindBool},
	}); err != nil {
		return nil, err
	}
	var settings mockTTSSettings
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return mock.NewSpeaker(configutil.BoolValue(settings.AutoFinish, true)), nil
}

func buildOpenAI(baseURL string, requireKey bool) LLMFactory {
	return func(cfg VendorConfig) (llm.LLMAdapter, error) {
		schema := configutil.Schema{Types: openAISettingTypes}
		if requireKey {
			schema.Required = []string{"api_key"}
		}
		if err := validateSettings("vendors.llm.settings", cfg.Settings, schema); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonConfigMissing)
		}
		var settings openai.Config
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, err
		}
		settings.BaseURL = configutil.StringValue(settings.BaseURL, baseURL)
		if requireKey && settings.Model == "" {
			settings.Model = "gpt-4o-mini"
		}
		return openai.NewAdapter(settings), nil
	}
}

var openAISettingTypes = map[string]configutil.Kind{
	"api_key":     configutil.KindString,
	"model":       configutil.KindString,
	"base_url":    configutil.KindString,
	"timeout":     configutil.KindDuration,
	"temperature": configutil.KindFloat,
	"max_tokens":  configutil.KindInt,
}

type mockLLMSettings struct {
	ResponseText string `mapstructure:"response_text"`
}

func buildMockLLM(cfg VendorConfig) (llm.LLMAdapter, error) {
	if err := validateSettings("vendors.llm.settings", cfg.Settings, configutil.Schema{
		Types: map[string]configutil.Kind{"response_text": configutil.KindString},
	}); err != nil {
		return nil, err
	}
	var settings mockLLMSettings
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return mock.NewLLMAdapter(mock.LLMConfig{ResponseText: settings.ResponseText}), nil
}

func validateSettings(path string, input map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func keys[V any](m map[string]V) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
