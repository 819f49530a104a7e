package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/pipescribe/internal/framing"
	"gopkg.in/yaml.v3"
)

// ValidEngineNames lists the engines shipped with pipescribe.
// Used by [Validate] to warn about unrecognised engine names.
var ValidEngineNames = []string{"whisper-native", "whisper", "openai", "deepgram"}

// DefaultModelPath is where the whisper-native engine looks for weights when
// no model is configured.
const DefaultModelPath = "models/ggml-large-v3.bin"

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Engine: EngineConfig{EngineEntry: EngineEntry{Name: "whisper-native"}},
		Recognition: RecognitionConfig{
			Language:  "en",
			BeamSize:  5,
			VADFilter: true,
		},
		Stream: StreamConfig{
			Framing:       framing.ModeLengthPrefixed.String(),
			ChunkSize:     framing.DefaultChunkSize,
			MaxFrameBytes: framing.DefaultMaxFrameBytes,
			SampleRate:    16000,
			Threshold:     0.01,
			SilenceOutput: SilenceEmptyLine,
			ContextWindow: 5,
			ErrorBackoff:  100 * time.Millisecond,
		},
		Resilience: ResilienceConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
	}
}

// ApplyDefaults fills the fields of cfg whose zero value is never a valid
// setting. Fields where zero is meaningful (threshold, context window, error
// backoff, vad filter) are left alone.
func ApplyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Engine.Name == "" {
		cfg.Engine.Name = def.Engine.Name
	}
	applyModelDefault(&cfg.Engine.EngineEntry)
	for i := range cfg.Engine.Fallbacks {
		applyModelDefault(&cfg.Engine.Fallbacks[i])
	}
	if cfg.Recognition.BeamSize == 0 {
		cfg.Recognition.BeamSize = def.Recognition.BeamSize
	}
	if cfg.Stream.Framing == "" {
		cfg.Stream.Framing = def.Stream.Framing
	}
	if cfg.Stream.ChunkSize == 0 {
		cfg.Stream.ChunkSize = def.Stream.ChunkSize
	}
	if cfg.Stream.MaxFrameBytes == 0 {
		cfg.Stream.MaxFrameBytes = def.Stream.MaxFrameBytes
	}
	if cfg.Stream.SampleRate == 0 {
		cfg.Stream.SampleRate = def.Stream.SampleRate
	}
	if cfg.Stream.SilenceOutput == "" {
		cfg.Stream.SilenceOutput = def.Stream.SilenceOutput
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = def.Resilience.MaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = def.Resilience.ResetTimeout
	}
}

func applyModelDefault(e *EngineEntry) {
	if e.Name == "whisper-native" && e.Model == "" {
		e.Model = DefaultModelPath
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Keys absent from the document keep their default
// value; unknown keys are an error. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Engines
	errs = append(errs, validateEngine("engine", cfg.Engine.EngineEntry)...)
	for i, fb := range cfg.Engine.Fallbacks {
		errs = append(errs, validateEngine(fmt.Sprintf("engine.fallbacks[%d]", i), fb)...)
	}

	// Recognition
	if cfg.Recognition.BeamSize < 1 {
		errs = append(errs, fmt.Errorf("recognition.beam_size %d must be at least 1", cfg.Recognition.BeamSize))
	}

	// Stream
	s := cfg.Stream
	mode, err := framing.ParseMode(s.Framing)
	if err != nil {
		errs = append(errs, fmt.Errorf("stream.framing %q is invalid; valid values: length-prefixed, fixed", s.Framing))
	}
	if s.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("stream.chunk_size %d must be positive", s.ChunkSize))
	} else if err == nil && mode == framing.ModeFixed && s.ChunkSize%mode.Encoding().BytesPerSample() != 0 {
		errs = append(errs, fmt.Errorf("stream.chunk_size %d must be a multiple of %d for fixed framing", s.ChunkSize, mode.Encoding().BytesPerSample()))
	}
	if s.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("stream.max_frame_bytes %d must be positive", s.MaxFrameBytes))
	}
	if s.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("stream.sample_rate %d must be positive", s.SampleRate))
	}
	if s.Threshold < 0 || s.Threshold > 1 {
		errs = append(errs, fmt.Errorf("stream.threshold %g is out of range [0, 1]", s.Threshold))
	}
	if s.SilenceOutput != SilenceEmptyLine && s.SilenceOutput != SilenceNone {
		errs = append(errs, fmt.Errorf("stream.silence_output %q is invalid; valid values: empty-line, none", s.SilenceOutput))
	}
	if s.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("stream.context_window %d must not be negative", s.ContextWindow))
	}
	if s.ErrorBackoff < 0 {
		errs = append(errs, fmt.Errorf("stream.error_backoff %s must not be negative", s.ErrorBackoff))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

func validateEngine(prefix string, e EngineEntry) []error {
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", prefix)}
	}
	validateEngineName(prefix, e.Name)

	var errs []error
	switch e.Name {
	case "whisper-native":
		if e.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required for whisper-native (path to ggml weights)", prefix))
		}
	case "whisper":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the whisper server engine", prefix))
		}
	case "openai", "deepgram":
		if e.APIKey == "" {
			slog.Warn("engine has no api_key; requests will be rejected unless the endpoint is unauthenticated",
				"field", prefix, "engine", e.Name)
		}
	}
	return errs
}

// validateEngineName logs a warning if name is not found in
// [ValidEngineNames]. Third-party engines may be registered at runtime.
func validateEngineName(prefix, name string) {
	if slices.Contains(ValidEngineNames, name) {
		return
	}
	slog.Warn("unknown engine name, may be a typo or third-party engine",
		"field", prefix,
		"name", name,
		"known", ValidEngineNames,
	)
}
