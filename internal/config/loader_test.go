package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/pipescribe/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"log level", "server:\n  log_level: verbose\n", "server.log_level"},
		{"whisper needs base_url", "engine:\n  name: whisper\n", "engine.base_url"},
		{"fallback name", "engine:\n  fallbacks:\n    - model: x\n", "engine.fallbacks[0].name"},
		{"fallback base_url", "engine:\n  fallbacks:\n    - name: whisper\n", "engine.fallbacks[0].base_url"},
		{"beam size", "recognition:\n  beam_size: -1\n", "recognition.beam_size"},
		{"framing", "stream:\n  framing: chunked\n", "stream.framing"},
		{"chunk size", "stream:\n  chunk_size: -5\n", "stream.chunk_size"},
		{"fixed chunk alignment", "stream:\n  framing: fixed\n  chunk_size: 6\n", "multiple of 4"},
		{"max frame", "stream:\n  max_frame_bytes: -1\n", "stream.max_frame_bytes"},
		{"sample rate", "stream:\n  sample_rate: -16000\n", "stream.sample_rate"},
		{"threshold low", "stream:\n  threshold: -0.1\n", "stream.threshold"},
		{"threshold high", "stream:\n  threshold: 1.5\n", "stream.threshold"},
		{"silence output", "stream:\n  silence_output: blank\n", "stream.silence_output"},
		{"context window", "stream:\n  context_window: -1\n", "stream.context_window"},
		{"error backoff", "stream:\n  error_backoff: -1s\n", "stream.error_backoff"},
		{"max failures", "resilience:\n  max_failures: -3\n", "resilience.max_failures"},
		{"reset timeout", "resilience:\n  reset_timeout: -1s\n", "resilience.reset_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
stream:
  threshold: 2
  silence_output: maybe
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "stream.threshold", "stream.silence_output"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_NativeEngineRequiresModel(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Engine.Model = ""
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "engine.model") {
		t.Fatalf("expected engine.model error, got %v", err)
	}
}

func TestValidate_ZeroThresholdAllowed(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("stream:\n  threshold: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Stream.Threshold != 0 {
		t.Errorf("threshold = %g, want 0", cfg.Stream.Threshold)
	}
}

func TestValidate_UnknownEngineOnlyWarns(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("engine:\n  name: my-engine\n")); err != nil {
		t.Fatalf("unknown engine names should only warn, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pipescribe.yaml")
	if err := os.WriteFile(path, []byte("stream:\n  threshold: 0.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Stream.Threshold != 0.2 {
		t.Errorf("threshold = %g, want 0.2", cfg.Stream.Threshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config: open") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestLoad_ParseErrorNamesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("stream: [unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("expected parse error naming the file, got %v", err)
	}
}
