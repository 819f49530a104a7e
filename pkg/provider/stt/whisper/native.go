// This file contains the NativeEngine implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/pipescribe/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeEngine satisfies stt.Transcriber.
var (
	_ stt.Transcriber = (*NativeEngine)(nil)
	_ stt.Closer      = (*NativeEngine)(nil)
)

// vadSetter is implemented by whisper.cpp binding versions that expose the
// built-in voice-activity filter.
type vadSetter interface {
	SetVAD(bool)
}

// NativeEngine implements stt.Transcriber using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup; every Transcribe call creates a fresh inference context from it.
type NativeEngine struct {
	model   whisperlib.Model
	threads uint

	// warnVAD makes the "VAD not available" warning fire once per process.
	warnVAD sync.Once
}

// NativeOption is a functional option for configuring a NativeEngine.
type NativeOption func(*NativeEngine)

// WithThreads sets the number of CPU threads whisper.cpp uses per call.
// Zero keeps the library default.
func WithThreads(n uint) NativeOption {
	return func(e *NativeEngine) { e.threads = n }
}

// NewNative creates a NativeEngine that loads the whisper.cpp model from
// the given file path. The caller must call Close when the engine is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &NativeEngine{model: model}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model.
func (e *NativeEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over samples and returns the
// recognised segments. The bindings do not observe ctx once Process has
// started, so cancellation is only checked before inference.
func (e *NativeEngine) Transcribe(ctx context.Context, samples []float32, opts stt.Options) ([]stt.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if opts.Language != "" {
		if err := wctx.SetLanguage(opts.Language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", opts.Language, "err", err)
		}
	}
	if opts.BeamSize > 0 {
		wctx.SetBeamSize(opts.BeamSize)
	}
	wctx.SetTemperature(opts.Temperature)
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}
	if e.threads > 0 {
		wctx.SetThreads(e.threads)
	}
	if v, ok := wctx.(vadSetter); ok {
		v.SetVAD(opts.VADFilter)
	} else if opts.VADFilter {
		e.warnVAD.Do(func() {
			slog.Warn("whisper: bindings lack a VAD toggle; vad_filter ignored", "err", stt.ErrNotSupported)
		})
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segs []stt.Segment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		segs = append(segs, stt.Segment{
			Text:  segment.Text,
			Start: segment.Start,
			End:   segment.End,
		})
	}
	return segs, nil
}
