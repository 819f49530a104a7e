// Package resilience keeps the worker transcribing when a speech engine
// misbehaves.
//
// Each engine gets a [CircuitBreaker]. After a run of consecutive engine
// failures the breaker opens and the engine is skipped until a cool-down has
// passed; one trial transcription then decides whether it is healthy again.
// [FallbackGroup] tries engines in order behind their breakers and
// [TranscriberFallback] exposes a group as a single [stt.Transcriber].
//
// The worker loop calls engines from one goroutine, but the admin readiness
// check reads breaker state concurrently, so all types lock internally.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling an engine whose breaker is
// open.
var ErrCircuitOpen = errors.New("resilience: engine circuit open")

// State is the position of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets a single trial call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

// CircuitBreakerConfig mirrors the resilience section of the config file.
type CircuitBreakerConfig struct {
	// Name is the engine name used in logs.
	Name string

	// MaxFailures consecutive engine failures open the breaker. Default 5.
	MaxFailures int

	// ResetTimeout is the cool-down before a trial call. Default 30s.
	ResetTimeout time.Duration

	now func() time.Time
}

// CircuitBreaker guards one engine.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialing bool
}

// NewCircuitBreaker returns a closed breaker. Non-positive limits fall back
// to the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		now:          cfg.now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = defaultMaxFailures
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = defaultResetTimeout
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen].
// Errors caused by context cancellation are returned unchanged and are not
// counted against the engine.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(trial, err)
	return err
}

// admit decides whether a call may proceed and whether it is the half-open
// trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialing {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trialing = true
		slog.Info("engine circuit half-open, sending trial transcription", "engine", cb.name)
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.trialing = false
	}

	switch {
	case isCancellation(err):
		// The worker is shutting down; the engine's health is unknown.
	case err == nil:
		if trial {
			slog.Info("engine circuit closed", "engine", cb.name)
		}
		cb.state = StateClosed
		cb.failures = 0
	case trial:
		cb.open()
		slog.Warn("engine trial transcription failed, circuit re-opened",
			"engine", cb.name, "err", err)
	default:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.open()
			slog.Warn("engine circuit opened",
				"engine", cb.name,
				"consecutive_failures", cb.failures,
				"retry_after", cb.resetTimeout)
		}
	}
}

// open must be called with cb.mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
}

// currentState must be called with cb.mu held. An open breaker whose
// cool-down has passed reports half-open.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// State returns the breaker position as seen by the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
