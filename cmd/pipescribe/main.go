// Command pipescribe is a speech-transcription worker. It reads framed audio
// from stdin and writes one line of recognised text per frame to stdout.
// Diagnostics go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/pipescribe/internal/app"
	"github.com/MrWong99/pipescribe/internal/config"
	"github.com/MrWong99/pipescribe/internal/observe"
	"github.com/MrWong99/pipescribe/internal/resilience"
	"github.com/MrWong99/pipescribe/pkg/provider/stt"
	"github.com/MrWong99/pipescribe/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/pipescribe/pkg/provider/stt/openai"
	"github.com/MrWong99/pipescribe/pkg/provider/stt/whisper"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// flags holds the command-line overrides. Only flags the user actually set
// are applied on top of the configuration.
type flags struct {
	configPath string
	framing    string
	threshold  float64
	model      string
	engine     string
	language   string
	logLevel   string

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("pipescribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "path to the YAML configuration file (optional)")
	fs.StringVar(&f.framing, "framing", "", "input framing: length-prefixed or fixed")
	fs.Float64Var(&f.threshold, "threshold", 0, "activity gate threshold in [0, 1]")
	fs.StringVar(&f.model, "model", "", "engine model (ggml path for whisper-native)")
	fs.StringVar(&f.engine, "engine", "", "engine name: whisper-native, whisper, openai, deepgram")
	fs.StringVar(&f.language, "language", "", "spoken language code")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// apply overrides cfg with the flags that were set.
func (f *flags) apply(cfg *config.Config) {
	if f.set["framing"] {
		cfg.Stream.Framing = f.framing
	}
	if f.set["threshold"] {
		cfg.Stream.Threshold = f.threshold
	}
	if f.set["engine"] && f.engine != cfg.Engine.Name {
		// A different engine does not inherit the file's model.
		cfg.Engine.Name = f.engine
		cfg.Engine.Model = ""
	}
	if f.set["model"] {
		cfg.Engine.Model = f.model
	}
	if f.set["language"] {
		cfg.Recognition.Language = f.language
	}
	if f.set["log-level"] {
		cfg.Server.LogLevel = config.LogLevel(f.logLevel)
	}
}

// loadConfig reads the config file (if any), applies flag overrides and
// validates the result.
func loadConfig(f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	f.apply(cfg)
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(f)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stderr, "pipescribe: config file %q not found\n", f.configPath)
		} else {
			fmt.Fprintf(stderr, "pipescribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	runID := uuid.NewString()
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: &level})).
		With("run_id", runID)
	slog.SetDefault(logger)

	slog.Info("pipescribe starting",
		"version", version,
		"config", f.configPath,
		"engine", cfg.Engine.Name,
		"framing", cfg.Stream.Framing,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		InstanceID:     runID,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Engine ────────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	engine, err := buildEngine(cfg, reg)
	if err != nil {
		slog.Error("failed to create engine", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(tel.Handler()),
	}
	if f.configPath != "" {
		w, err := config.NewWatcher(f.configPath, func(old, new *config.Config) {
			onConfigChange(&level, f, old, new)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			opts = append(opts, app.WithWatcher(w))
		}
	}

	printStartupSummary(stderr, cfg)

	application, err := app.New(cfg, engine, stdin, stdout, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if cerr := stt.Close(engine); cerr != nil {
			slog.Warn("engine close error", "err", cerr)
		}
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("shutdown signal received")
		} else {
			slog.Error("run error", "err", err)
			code = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	slog.Info("shutdown")
	return code
}

// onConfigChange applies the hot-reloadable part of a config edit.
func onConfigChange(level *slog.LevelVar, f *flags, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && !f.set["log-level"] {
		level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ── Engine wiring ─────────────────────────────────────────────────────────────

// registerBuiltinEngines wires all built-in engine factories into reg.
func registerBuiltinEngines(reg *config.Registry) {
	reg.RegisterEngine("whisper-native", func(entry config.EngineEntry) (stt.Transcriber, error) {
		var opts []whisper.NativeOption
		if n := entry.OptionInt("threads", 0); n > 0 {
			opts = append(opts, whisper.WithThreads(uint(n)))
		}
		return whisper.NewNative(entry.Model, opts...)
	})

	reg.RegisterEngine("whisper", func(entry config.EngineEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterEngine("openai", func(entry config.EngineEntry) (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if n := entry.OptionInt("max_retries", -1); n >= 0 {
			opts = append(opts, sttopenai.WithMaxRetries(n))
		}
		if s := entry.OptionInt("timeout_seconds", 0); s > 0 {
			opts = append(opts, sttopenai.WithTimeout(time.Duration(s)*time.Second))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEngine("deepgram", func(entry config.EngineEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for _, name := range reg.Names() {
		slog.Debug("registered engine", "name", name)
	}
}

// buildEngine instantiates the configured engine. With fallbacks configured
// the engines are wrapped in a [resilience.TranscriberFallback].
func buildEngine(cfg *config.Config, reg *config.Registry) (stt.Transcriber, error) {
	primary, err := reg.CreateEngine(cfg.Engine.EngineEntry)
	if err != nil {
		return nil, err
	}
	slog.Info("engine created", "name", cfg.Engine.Name, "model", cfg.Engine.Model)
	if len(cfg.Engine.Fallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewTranscriberFallback(primary, cfg.Engine.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
		},
	})
	for i, entry := range cfg.Engine.Fallbacks {
		t, err := reg.CreateEngine(entry)
		if err != nil {
			if cerr := fb.Close(); cerr != nil {
				slog.Warn("engine close error", "err", cerr)
			}
			return nil, fmt.Errorf("engine.fallbacks[%d]: %w", i, err)
		}
		fb.AddFallback(entry.Name, t)
		slog.Info("fallback engine created", "name", entry.Name, "position", i+1)
	}
	return fb, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        pipescribe startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Engine", engineLabel(cfg.Engine.EngineEntry))
	for _, fb := range cfg.Engine.Fallbacks {
		printRow(w, "Fallback", engineLabel(fb))
	}
	printRow(w, "Language", cfg.Recognition.Language)
	printRow(w, "Framing", cfg.Stream.Framing)
	printRow(w, "Threshold", fmt.Sprintf("%g", cfg.Stream.Threshold))
	printRow(w, "Silence", cfg.Stream.SilenceOutput)
	printRow(w, "Context", fmt.Sprintf("%d words", cfg.Stream.ContextWindow))
	if cfg.Server.AdminAddr != "" {
		printRow(w, "Admin addr", cfg.Server.AdminAddr)
	} else {
		printRow(w, "Admin addr", "(disabled)")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func engineLabel(e config.EngineEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + " / " + e.Model
}

func printRow(w io.Writer, key, value string) {
	if value == "" {
		value = "(auto)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}
