package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/pipescribe/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Engine.Options = map[string]any{"threads": 4}
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is hot-reloadable, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.AdminAddr = ":9464"
	new.Engine.Options = map[string]any{"threads": 2}
	new.Stream.Threshold = 0.2
	new.Resilience.MaxFailures = 1

	d := config.Diff(old, new)
	want := []string{"server.admin_addr", "engine", "stream", "resilience"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_FallbackChangeIsEngineChange(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Engine.Fallbacks = []config.EngineEntry{{Name: "openai"}}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "engine") {
		t.Errorf("RestartRequired = %v, want engine", d.RestartRequired)
	}
}

func TestDiff_RecognitionChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Recognition.Language = "fr"

	d := config.Diff(old, new)
	if !slices.Equal(d.RestartRequired, []string{"recognition"}) {
		t.Errorf("RestartRequired = %v, want [recognition]", d.RestartRequired)
	}
}
