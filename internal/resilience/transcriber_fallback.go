package resilience

import (
	"context"

	"github.com/MrWong99/pipescribe/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across several engines. Each engine has its own circuit breaker, so an
// engine that keeps failing is skipped until its reset timeout elapses.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertions.
var (
	_ stt.Transcriber = (*TranscriberFallback)(nil)
	_ stt.Closer      = (*TranscriberFallback)(nil)
)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred engine.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional engine as a fallback.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the waveform through the first healthy engine. If it
// fails, subsequent fallbacks are tried with the same options.
func (f *TranscriberFallback) Transcribe(ctx context.Context, samples []float32, opts stt.Options) ([]stt.Segment, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) ([]stt.Segment, error) {
		return t.Transcribe(ctx, samples, opts)
	})
}

// Available reports whether at least one engine's breaker is not open. It
// backs the admin readiness check.
func (f *TranscriberFallback) Available() bool {
	return f.group.Available()
}

// Names returns the engine names in failover order.
func (f *TranscriberFallback) Names() []string {
	return f.group.Names()
}

// Close releases every engine that holds resources.
func (f *TranscriberFallback) Close() error {
	return f.group.Each(func(_ string, t stt.Transcriber) error {
		return stt.Close(t)
	})
}
