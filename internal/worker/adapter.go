package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/MrWong99/pipescribe/internal/observe"
	"github.com/MrWong99/pipescribe/pkg/audio"
	"github.com/MrWong99/pipescribe/pkg/provider/stt"
)

// EngineError reports a failed engine call. The frame it belongs to
// produces no output and does not update the context carrier.
type EngineError struct {
	Engine string

	// Panic is set when the engine panicked; Err then describes the
	// recovered value.
	Panic bool

	Err error
}

// Error implements error.
func (e *EngineError) Error() string {
	if e.Panic {
		return fmt.Sprintf("worker: engine %q panicked: %v", e.Engine, e.Err)
	}
	return fmt.Sprintf("worker: engine %q: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error { return e.Err }

// Adapter turns a [stt.Transcriber] into a single-line recogniser with
// pinned decoding options.
type Adapter struct {
	engine  stt.Transcriber
	name    string
	opts    stt.Options
	metrics *observe.Metrics
}

// NewAdapter returns an Adapter that calls engine with opts on every frame.
// The prompt field of opts is replaced by the carrier text per call and the
// temperature is always zero.
func NewAdapter(engine stt.Transcriber, name string, opts stt.Options, metrics *observe.Metrics) *Adapter {
	opts.Temperature = 0
	opts.Prompt = ""
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Adapter{engine: engine, name: name, opts: opts, metrics: metrics}
}

// Transcribe recognises w and returns the joined, trimmed segment text. An
// empty waveform returns "" without calling the engine. Engine failures are
// returned as *EngineError.
func (a *Adapter) Transcribe(ctx context.Context, w audio.Waveform, prompt string) (string, error) {
	if len(w) == 0 {
		return "", nil
	}
	opts := a.opts
	opts.Prompt = prompt

	start := time.Now()
	segs, err := a.call(ctx, w, opts)
	elapsed := time.Since(start)
	if err != nil {
		a.metrics.RecordTranscription(ctx, a.name, observe.StatusError, elapsed)
		return "", err
	}

	text := JoinSegments(segs)
	status := observe.StatusOK
	if text == "" {
		status = observe.StatusEmpty
	}
	a.metrics.RecordTranscription(ctx, a.name, status, elapsed)
	return text, nil
}

func (a *Adapter) call(ctx context.Context, w audio.Waveform, opts stt.Options) (segs []stt.Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Error("engine panic recovered",
				"engine", a.name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			segs, err = nil, &EngineError{Engine: a.name, Panic: true, Err: fmt.Errorf("%v", r)}
		}
	}()
	segs, err = a.engine.Transcribe(ctx, w, opts)
	if err != nil {
		return nil, &EngineError{Engine: a.name, Err: err}
	}
	return segs, nil
}

// JoinSegments trims every segment, drops the empty ones and joins the rest
// with single spaces.
func JoinSegments(segs []stt.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
