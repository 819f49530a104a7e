// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to script engine results and inspect the waveforms and
// options the worker sent.
//
// Example:
//
//	eng := &mock.Transcriber{Segments: []stt.Segment{{Text: " hello "}}}
//	w := worker.New(in, out, eng, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/pipescribe/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the waveform passed to Transcribe.
	Samples []float32
	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Response is one scripted result returned by Transcriber.
type Response struct {
	Segments []stt.Segment
	Err      error
	// Panic, if non-nil, makes Transcribe panic with this value.
	Panic any
}

// Transcriber is a mock implementation of stt.Transcriber.
//
// When Responses is non-empty, each call pops the first entry. Once it is
// exhausted (or if it was never set), every call returns Segments, Err.
type Transcriber struct {
	mu sync.Mutex

	// Segments is the default result returned by Transcribe.
	Segments []stt.Segment

	// Err, if non-nil, is the default error returned by Transcribe.
	Err error

	// Responses is an ordered queue of per-call results.
	Responses []Response

	// CloseErr is returned by Close.
	CloseErr error

	// --- Call records ---

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the next scripted result.
func (m *Transcriber) Transcribe(_ context.Context, samples []float32, opts stt.Options) ([]stt.Segment, error) {
	m.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	m.Calls = append(m.Calls, TranscribeCall{Samples: cp, Opts: opts})

	segs, err := m.Segments, m.Err
	var panicVal any
	if len(m.Responses) > 0 {
		r := m.Responses[0]
		m.Responses = m.Responses[1:]
		segs, err, panicVal = r.Segments, r.Err, r.Panic
	}
	m.mu.Unlock()

	if panicVal != nil {
		panic(panicVal)
	}
	return segs, err
}

// Close records the call and returns CloseErr.
func (m *Transcriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCallCount++
	return m.CloseErr
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.CloseCallCount = 0
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var (
	_ stt.Transcriber = (*Transcriber)(nil)
	_ stt.Closer      = (*Transcriber)(nil)
)
