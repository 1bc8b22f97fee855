package aide

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/chat"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/plugins"
	"github.com/harunnryd/aide/pkg/search"
	"github.com/harunnryd/aide/pkg/turn"
	"github.com/harunnryd/aide/pkg/vad"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	LogFile      string        `mapstructure:"log_file"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	HistoryFile  string        `mapstructure:"history_file"`
	Vendors      VendorsConfig `mapstructure:"vendors"`
	Audio        audio.Config  `mapstructure:"audio"`
	VAD          vad.Config    `mapstructure:"vad"`
	Voice        VoiceConfig   `mapstructure:"voice"`
	Turn         TurnConfig    `mapstructure:"turn"`
	Tools        ToolsConfig   `mapstructure:"tools"`
	Plugins      PluginsConfig `mapstructure:"plugins"`
	Search       SearchConfig  `mapstructure:"search"`
	Access       AccessConfig  `mapstructure:"access"`
	Chat         chat.Config   `mapstructure:"chat"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
	Privacy      PrivacyConfig `mapstructure:"privacy"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type VoiceConfig struct {
	// Enabled starts microphone capture and transcription.
	Enabled bool `mapstructure:"enabled"`
	// Output is the initial state of spoken replies.
	Output            bool          `mapstructure:"output"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout"`
}

type TurnConfig struct {
	// Policy is barge_in or mute. It is fixed for the session.
	Policy string `mapstructure:"policy"`
}

type ToolsConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRounds   int           `mapstructure:"max_rounds"`
}

type PluginsConfig struct {
	Tasks TasksConfig        `mapstructure:"tasks"`
	PDF   PDFConfig          `mapstructure:"pdf"`
	Time  plugins.TimeConfig `mapstructure:"time"`
	SMS   plugins.SMSConfig  `mapstructure:"sms"`
}

type TasksConfig struct {
	File string `mapstructure:"file"`
}

type PDFConfig struct {
	BaseDir  string `mapstructure:"base_dir"`
	MaxChars int    `mapstructure:"max_chars"`
}

type SearchConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	search.Config `mapstructure:",squash"`
}

type AccessConfig struct {
	Password    string `mapstructure:"password"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type MetricsConfig struct {
	// Addr serves Prometheus /metrics when set.
	Addr string `mapstructure:"addr"`
	// JSONL appends every event to this file when set.
	JSONL       string  `mapstructure:"jsonl"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	AsyncBuffer int     `mapstructure:"async_buffer"`
}

type PrivacyConfig struct {
	RedactPII   bool `mapstructure:"redact_pii"`
	MaxLogChars int  `mapstructure:"max_log_chars"`
}

type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// LoadConfig reads path, applies defaults, .env files and AIDE_ environment
// overrides, then validates the result. An empty path uses defaults only.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfigInvalid)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonConfigInvalid)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "aide.log")
	v.SetDefault("system_prompt", "")
	v.SetDefault("history_file", "chat_history.json")

	v.SetDefault("vendors.stt.provider", "whisper")
	v.SetDefault("vendors.tts.provider", "os")
	v.SetDefault("vendors.llm.provider", "openai")

	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.frame_duration", "50ms")
	v.SetDefault("audio.buffer", 64)
	v.SetDefault("audio.listen_addr", "127.0.0.1:8765")
	v.SetDefault("audio.path", "/audio")

	d := vad.DefaultConfig()
	v.SetDefault("vad.threshold", d.Threshold)
	v.SetDefault("vad.hangover", d.Hangover.String())
	v.SetDefault("vad.min_utterance", d.MinUtterance.String())
	v.SetDefault("vad.max_utterance", d.MaxUtterance.String())
	v.SetDefault("vad.min_bytes", d.MinBytes)

	v.SetDefault("voice.enabled", false)
	v.SetDefault("voice.output", true)
	v.SetDefault("voice.transcribe_timeout", "60s")

	v.SetDefault("turn.policy", "barge_in")

	v.SetDefault("tools.concurrency", 4)
	v.SetDefault("tools.timeout", "30s")
	v.SetDefault("tools.max_rounds", 4)

	v.SetDefault("plugins.tasks.file", "data/tasks.json")
	v.SetDefault("plugins.pdf.base_dir", "")
	v.SetDefault("plugins.pdf.max_chars", 0)
	v.SetDefault("plugins.time.api_key", "")
	v.SetDefault("plugins.time.timeout", "10s")
	v.SetDefault("plugins.sms.account_sid", "")
	v.SetDefault("plugins.sms.auth_token", "")
	v.SetDefault("plugins.sms.from", "")
	v.SetDefault("plugins.sms.to", "")

	v.SetDefault("search.enabled", false)
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.engine_id", "")
	v.SetDefault("search.results", 3)
	v.SetDefault("search.timeout", "15s")

	v.SetDefault("access.password", "")
	v.SetDefault("access.max_attempts", 3)

	v.SetDefault("chat.max_empty", 3)
	v.SetDefault("chat.trim_threshold", 100)
	v.SetDefault("chat.no_color", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.jsonl", "")
	v.SetDefault("metrics.sample_rate", 1.0)
	v.SetDefault("metrics.async_buffer", 1024)

	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("privacy.max_log_chars", 200)

	v.SetDefault("breaker.threshold", 3)
	v.SetDefault("breaker.cooldown", "30s")
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		errs = append(errs, errorsx.Errorf(errorsx.ReasonConfigMissing, "vendors.llm.provider is required"))
	}
	if c.Voice.Enabled && strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		errs = append(errs, errorsx.Errorf(errorsx.ReasonConfigMissing, "vendors.stt.provider is required when voice.enabled"))
	}
	if c.Voice.Output && strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		errs = append(errs, errorsx.Errorf(errorsx.ReasonConfigMissing, "vendors.tts.provider is required when voice.output"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Turn.Policy)) {
	case "", "barge_in", "bargein", "mute", "polite", "half_duplex":
	default:
		errs = append(errs, errorsx.Errorf(errorsx.ReasonConfigInvalid, "turn.policy must be barge_in or mute, got %q", c.Turn.Policy))
	}
	if c.Search.Enabled && (strings.TrimSpace(c.Search.APIKey) == "" || strings.TrimSpace(c.Search.EngineID) == "") {
		errs = append(errs, errorsx.Errorf(errorsx.ReasonConfigMissing, "search.enabled requires search.api_key and search.engine_id"))
	}
	if c.Plugins.SMS.Enabled() {
		if err := c.Plugins.SMS.Validate(); err != nil {
			errs = append(errs, errorsx.Wrap(fmt.Errorf("plugins.sms: %w", err), errorsx.ReasonConfigMissing))
		}
	}
	if c.Metrics.SampleRate < 0 || c.Metrics.SampleRate > 1 {
		errs = append(errs, errorsx.Errorf(errorsx.ReasonConfigInvalid, "metrics.sample_rate must be between 0 and 1, got %v", c.Metrics.SampleRate))
	}
	return errors.Join(errs...)
}

// Strategy returns the microphone policy for the session.
func (c *Config) Strategy() turn.Strategy {
	return turn.StrategyByName(c.Turn.Policy)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
