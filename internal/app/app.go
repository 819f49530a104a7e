// Package app wires the pipescribe subsystems into a running process.
//
// The App struct owns the full lifecycle: New builds the worker and the
// optional admin listener, Run drives them until the input stream ends or
// the context is cancelled, and Shutdown releases the engine and listener.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithMetricsHandler, WithWatcher). The speech engine and the input and output streams are
// always passed in by the caller.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pipescribe/internal/config"
	"github.com/MrWong99/pipescribe/internal/framing"
	"github.com/MrWong99/pipescribe/internal/health"
	"github.com/MrWong99/pipescribe/internal/observe"
	"github.com/MrWong99/pipescribe/internal/worker"
	"github.com/MrWong99/pipescribe/pkg/provider/stt"
)

// adminShutdownTimeout bounds how long in-flight admin requests may take
// once the worker has stopped.
const adminShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	engine stt.Transcriber

	metrics        *observe.Metrics
	metricsHandler http.Handler
	ready          *health.Flag
	worker  *worker.Worker
	watcher *config.Watcher

	// Admin listener; nil when server.admin_addr is empty.
	adminLn  net.Listener
	adminSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics injects a metrics instance instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default Prometheus
// registry. Pair it with WithMetrics from the same [observe.Telemetry].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithWatcher runs w alongside the worker so config edits are picked up.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App that reads frames from in, writes result lines to out
// and transcribes with engine. The App takes ownership of engine and closes
// it in Shutdown. When cfg.Server.AdminAddr is set the admin listener is
// bound here so that an unusable address is a startup failure.
func New(cfg *config.Config, engine stt.Transcriber, in io.Reader, out io.Writer, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		engine: engine,
		ready:  &health.Flag{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}
	a.closers = append(a.closers, func() error { return stt.Close(engine) })

	wcfg, err := WorkerConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.worker = worker.New(in, out, engine, wcfg,
		worker.WithMetrics(a.metrics),
		worker.WithReadiness(a.ready),
	)

	if cfg.Server.AdminAddr != "" {
		if err := a.initAdmin(cfg.Server.AdminAddr); err != nil {
			return nil, fmt.Errorf("app: init admin listener: %w", err)
		}
	}

	return a, nil
}

// WorkerConfig translates the file configuration into loop parameters.
func WorkerConfig(cfg *config.Config) (worker.Config, error) {
	mode, err := framing.ParseMode(cfg.Stream.Framing)
	if err != nil {
		return worker.Config{}, err
	}
	silence, err := worker.ParseSilenceOutput(cfg.Stream.SilenceOutput)
	if err != nil {
		return worker.Config{}, err
	}
	return worker.Config{
		Framing: framing.Config{
			Mode:          mode,
			ChunkSize:     cfg.Stream.ChunkSize,
			MaxFrameBytes: cfg.Stream.MaxFrameBytes,
		},
		SampleRate:    cfg.Stream.SampleRate,
		Threshold:     float32(cfg.Stream.Threshold),
		SilenceOutput: silence,
		ContextWindow: cfg.Stream.ContextWindow,
		ErrorBackoff:  cfg.Stream.ErrorBackoff,
		Recognition: stt.Options{
			Language:  cfg.Recognition.Language,
			BeamSize:  cfg.Recognition.BeamSize,
			VADFilter: cfg.Recognition.VADFilter,
		},
		EngineName: cfg.Engine.Name,
	}, nil
}

// availability is implemented by engines that can report whether any
// backend is currently usable (the fallback group).
type availability interface {
	Available() bool
}

// initAdmin binds the admin listener and builds its handler.
func (a *App) initAdmin(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.adminLn = ln
	a.closers = append(a.closers, func() error {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})

	checkers := []health.Checker{a.ready.Checker("worker")}
	if av, ok := a.engine.(availability); ok {
		checkers = append(checkers, health.Checker{
			Name: "engine",
			Check: func(context.Context) error {
				if av.Available() {
					return nil
				}
				return errors.New("all engine circuit breakers are open")
			},
		})
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metricsHandler)
	health.New(checkers...).Register(mux)

	a.adminSrv = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("admin listener bound", "addr", ln.Addr().String())
	return nil
}

// AdminAddr returns the bound admin address, or "" when the listener is
// disabled.
func (a *App) AdminAddr() string {
	if a.adminLn == nil {
		return ""
	}
	return a.adminLn.Addr().String()
}

// Ready reports whether the worker loop is running.
func (a *App) Ready() bool { return a.ready.Ready() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run drives the worker until the input ends or ctx is cancelled. The admin
// listener and config watcher run alongside and stop when the worker does.
// It returns nil at end of stream and context.Canceled on interrupt.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The worker finishing for any reason stops the side goroutines.
		defer cancel()
		err := a.worker.Run(gctx)
		a.worker.Stats().Log(slog.Default())
		return err
	})

	if a.adminSrv != nil {
		g.Go(func() error {
			if err := a.adminSrv.Serve(a.adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: admin listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			return a.adminSrv.Shutdown(shutdownCtx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the engine and the admin listener. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		var errs []error
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
