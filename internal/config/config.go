// Package config provides the configuration schema, loader, and engine registry
// for the pipescribe transcription worker.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the corresponding [slog.Level]. Unknown values map to
// info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Silence output values for [StreamConfig.SilenceOutput].
const (
	SilenceEmptyLine = "empty-line"
	SilenceNone      = "none"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// [Default] returns the configuration used when no file is given.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Engine      EngineConfig      `yaml:"engine"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Stream      StreamConfig      `yaml:"stream"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. It is the only setting applied live when
	// the config file changes.
	LogLevel LogLevel `yaml:"log_level"`

	// AdminAddr is the TCP address of the admin listener serving /metrics,
	// /healthz and /readyz (e.g., "127.0.0.1:9464"). Empty disables it.
	AdminAddr string `yaml:"admin_addr"`
}

// EngineEntry is the configuration block shared by all speech engines.
// The Name field is used to look up the constructor in the [Registry].
type EngineEntry struct {
	// Name selects the registered engine (e.g., "whisper-native", "deepgram").
	Name string `yaml:"name"`

	// Model selects the model. For whisper-native it is the path to the
	// ggml weights; for hosted engines it is the provider's model id.
	Model string `yaml:"model"`

	// BaseURL overrides the engine's default endpoint. Required for the
	// whisper HTTP engine.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted engines.
	APIKey string `yaml:"api_key"`

	// Options holds engine-specific values not covered above (e.g., threads).
	Options map[string]any `yaml:"options"`
}

// EngineConfig selects the primary engine and an ordered list of fallbacks.
type EngineConfig struct {
	EngineEntry `yaml:",inline"`

	// Fallbacks are tried in order when the primary engine fails or its
	// circuit breaker is open.
	Fallbacks []EngineEntry `yaml:"fallbacks"`
}

// RecognitionConfig pins the decoding options sent with every frame.
type RecognitionConfig struct {
	// Language is the BCP-47 code of the spoken language. Empty lets the
	// engine detect it.
	Language string `yaml:"language"`

	// BeamSize is the beam width for engines that support beam search.
	BeamSize int `yaml:"beam_size"`

	// VADFilter asks the engine to skip non-speech regions inside a frame.
	VADFilter bool `yaml:"vad_filter"`
}

// StreamConfig describes the input stream and per-frame behaviour.
type StreamConfig struct {
	// Framing is "length-prefixed" or "fixed".
	Framing string `yaml:"framing"`

	// ChunkSize is the frame size in bytes for fixed framing.
	ChunkSize int `yaml:"chunk_size"`

	// MaxFrameBytes caps the payload a length-prefixed frame may declare.
	MaxFrameBytes int `yaml:"max_frame_bytes"`

	// SampleRate is the rate of the incoming audio in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Threshold is the activity gate level in [0, 1]. Frames whose peak is
	// strictly below it are silent.
	Threshold float64 `yaml:"threshold"`

	// SilenceOutput is "empty-line" or "none".
	SilenceOutput string `yaml:"silence_output"`

	// ContextWindow is the number of trailing words carried as a prompt.
	// Zero disables the carrier.
	ContextWindow int `yaml:"context_window"`

	// ErrorBackoff is slept after an engine failure.
	ErrorBackoff time.Duration `yaml:"error_backoff"`
}

// ResilienceConfig tunes the per-engine circuit breakers.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// OptionInt returns the integer option key, or def when it is missing or not
// a number.
func (e EngineEntry) OptionInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// OptionString returns the string option key, or def when it is missing or
// not a string.
func (e EngineEntry) OptionString(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}
