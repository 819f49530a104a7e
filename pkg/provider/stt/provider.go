// Package stt defines the Transcriber interface for speech recognition
// engines.
//
// A Transcriber is a batch engine: it receives one complete mono waveform at
// 16 kHz and returns the ordered segments it recognised. Implementations wrap
// a local whisper.cpp model, a whisper-server over HTTP, the OpenAI audio
// transcription API or Deepgram's live endpoint; the worker never knows which.
//
// Implementations must be safe for sequential reuse across many calls. The
// worker never calls Transcribe concurrently, but fallback wrappers and tests
// may.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned (wrapped) when an engine cannot honour an
// option. Callers treat it as advisory: engines that cannot apply an option
// log and continue rather than fail the call.
var ErrNotSupported = errors.New("stt: not supported")

// Transcriber is the abstraction over any speech recognition backend.
type Transcriber interface {
	// Transcribe recognises speech in samples, a mono waveform at 16 kHz with
	// values in [-1.0, 1.0]. It returns the recognised segments in order. A
	// nil or empty slice with a nil error means no speech was recognised.
	//
	// Returns an error if the engine fails; the caller decides whether that
	// is fatal. ctx cancellation must abort the call where the engine
	// supports it.
	Transcribe(ctx context.Context, samples []float32, opts Options) ([]Segment, error)
}

// Closer is implemented by engines that hold resources (a loaded model, an
// HTTP client pool) and must be released at shutdown.
type Closer interface {
	Close() error
}

// Close releases t if it implements [Closer]; otherwise it is a no-op.
func Close(t Transcriber) error {
	if c, ok := t.(Closer); ok {
		return c.Close()
	}
	return nil
}
