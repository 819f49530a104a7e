// Package worker runs the transcription loop: it reads frames from the
// input stream, decodes and gates them, asks the speech engine for text and
// writes one line per frame to the output stream.
//
// A [Worker] owns all per-stream state (reader position, gate threshold and
// context carrier) and is driven by a single goroutine. The only extra
// goroutine is the blocking input read, which is raced against context
// cancellation so that an interrupt does not wait for the parent to send
// more audio.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/pipescribe/internal/framing"
	"github.com/MrWong99/pipescribe/internal/health"
	"github.com/MrWong99/pipescribe/internal/observe"
	"github.com/MrWong99/pipescribe/pkg/audio"
	"github.com/MrWong99/pipescribe/pkg/provider/stt"
)

// SilenceOutput selects what a silent frame writes.
type SilenceOutput int

const (
	// SilenceEmptyLine writes an empty line so every frame maps to one line.
	SilenceEmptyLine SilenceOutput = iota

	// SilenceNone writes nothing for silent frames.
	SilenceNone
)

// ErrUnknownSilenceOutput is returned by [ParseSilenceOutput].
var ErrUnknownSilenceOutput = errors.New("worker: unknown silence output")

// ParseSilenceOutput parses "empty-line" or "none". The empty string selects
// SilenceEmptyLine.
func ParseSilenceOutput(s string) (SilenceOutput, error) {
	switch s {
	case "", "empty-line":
		return SilenceEmptyLine, nil
	case "none":
		return SilenceNone, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownSilenceOutput, s)
	}
}

// String returns the configuration spelling.
func (s SilenceOutput) String() string {
	if s == SilenceNone {
		return "none"
	}
	return "empty-line"
}

// Config holds the loop parameters.
type Config struct {
	Framing framing.Config

	// SampleRate is the rate of the incoming audio in Hz. Zero means the
	// engine rate.
	SampleRate int

	// Threshold is the activity gate threshold. Frames whose peak amplitude
	// is strictly below it are silent.
	Threshold float32

	SilenceOutput SilenceOutput

	// ContextWindow is the number of trailing words offered to the engine
	// as a prompt. Zero disables the carrier.
	ContextWindow int

	// ErrorBackoff is slept after an engine failure.
	ErrorBackoff time.Duration

	// Recognition carries the pinned engine options. Prompt and Temperature
	// are ignored.
	Recognition stt.Options

	// EngineName labels engine metrics and logs.
	EngineName string
}

// Stats summarises a run.
type Stats struct {
	FramesRead   uint64
	Transcribed  uint64
	Silent       uint64
	Discarded    uint64
	Failed       uint64
	LinesWritten uint64
}

// Option configures a [Worker].
type Option func(*Worker)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithReadiness sets a flag the worker marks ready while the loop runs.
func WithReadiness(f *health.Flag) Option {
	return func(w *Worker) { w.ready = f }
}

// Worker is the transcription loop. Create one with [New] and call
// [Worker.Run] once.
type Worker struct {
	cfg     Config
	reader  *framing.Reader
	conv    *audio.Converter
	gate    audio.Gate
	adapter *Adapter
	carrier *Carrier
	out     *Output
	metrics *observe.Metrics
	ready   *health.Flag
	stats   Stats
}

// New returns a Worker reading frames from in and writing lines to out.
// engine is used for every voiced frame; the caller owns its lifetime.
func New(in io.Reader, out io.Writer, engine stt.Transcriber, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		cfg:     cfg,
		reader:  framing.NewReader(in, cfg.Framing),
		conv:    &audio.Converter{SourceRate: cfg.SampleRate, TargetRate: audio.EngineSampleRate},
		gate:    audio.Gate{Threshold: cfg.Threshold},
		carrier: NewCarrier(cfg.ContextWindow),
		out:     NewOutput(out),
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	w.adapter = NewAdapter(engine, cfg.EngineName, cfg.Recognition, w.metrics)
	return w
}

// Stats returns the counters of the run. Call it after Run returns.
func (w *Worker) Stats() Stats { return w.stats }

// Context returns the words currently offered to the engine as a prompt.
func (w *Worker) Context() []string { return w.carrier.Words() }

// Run processes frames until the input ends, ctx is cancelled or writing
// output fails. It returns nil at end of stream and ctx.Err() on
// cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w.ready != nil {
		w.ready.SetReady()
		defer w.ready.SetNotReady("worker stopped")
	}
	framingName := w.reader.Mode().String()
	slog.Info("worker started",
		"framing", framingName,
		"threshold", w.cfg.Threshold,
		"engine", w.cfg.EngineName,
		"context_window", w.cfg.ContextWindow,
		"silence_output", w.cfg.SilenceOutput.String(),
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := w.step(ctx)
		if err != nil {
			return err
		}
		if outcome.Kind == OutcomeEnd {
			slog.Info("end of stream")
			return nil
		}
		if err := w.handle(ctx, outcome); err != nil {
			return err
		}
	}
}

// step reads and processes one frame. It returns an error only for
// conditions that end the loop other than end of stream.
func (w *Worker) step(ctx context.Context) (Outcome, error) {
	frame, err := w.next(ctx)
	if err != nil {
		// A malformed frame may wrap io.ErrUnexpectedEOF when the stream
		// ended mid-frame; it is still reported before the end of stream.
		if me, ok := framing.IsMalformed(err); ok {
			return Outcome{Kind: OutcomeDiscard, Seq: me.Seq, Err: me}, nil
		}
		if errors.Is(err, io.EOF) {
			return Outcome{Kind: OutcomeEnd}, nil
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, err
	}

	w.stats.FramesRead++
	w.metrics.RecordFrameRead(ctx, w.reader.Mode().String())

	ctx, span := observe.StartFrameSpan(ctx, frame.Seq, w.reader.Mode().String())
	defer span.End()

	outcome := w.process(ctx, frame)
	if outcome.Kind == OutcomeEngineFailure && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	return outcome, nil
}

type readResult struct {
	frame framing.Frame
	err   error
}

// next reads one frame on a helper goroutine so that cancellation is not
// blocked by a pending read. On cancellation the goroutine is abandoned.
func (w *Worker) next(ctx context.Context) (framing.Frame, error) {
	ch := make(chan readResult, 1)
	go func() {
		f, err := w.reader.Next()
		ch <- readResult{frame: f, err: err}
	}()
	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		return framing.Frame{}, ctx.Err()
	}
}

// process decodes, gates and transcribes one frame.
func (w *Worker) process(ctx context.Context, frame framing.Frame) Outcome {
	log := observe.Logger(ctx)

	samples, err := audio.Decode(frame.Encoding, frame.Data)
	if err != nil {
		return Outcome{Kind: OutcomeDiscard, Seq: frame.Seq, Err: &framing.MalformedError{
			Seq:    frame.Seq,
			Reason: framing.ReasonDecode,
			Err:    err,
		}}
	}
	samples = w.conv.Convert(samples)

	peak, silent := w.gate.Classify(samples)
	w.metrics.RecordPeak(ctx, peak)
	log.Debug("frame decoded",
		"frame", frame.Seq,
		"bytes", len(frame.Data),
		"samples", len(samples),
		"peak", peak,
	)
	if silent {
		return Outcome{Kind: OutcomeSilent, Seq: frame.Seq, Peak: peak}
	}

	text, err := w.adapter.Transcribe(ctx, samples, w.carrier.Prompt())
	if err != nil {
		return Outcome{Kind: OutcomeEngineFailure, Seq: frame.Seq, Peak: peak, Err: err}
	}
	return Outcome{Kind: OutcomeText, Seq: frame.Seq, Peak: peak, Text: text}
}

// handle applies an outcome: carrier update, output and counters.
func (w *Worker) handle(ctx context.Context, o Outcome) error {
	switch o.Kind {
	case OutcomeText:
		w.stats.Transcribed++
		w.carrier.Update(o.Text)
		slog.Debug("frame transcribed", "frame", o.Seq, "chars", len(o.Text))
		return w.writeLine(ctx, o.Text)

	case OutcomeSilent:
		w.stats.Silent++
		w.metrics.RecordFrameSilent(ctx)
		slog.Debug("frame below threshold", "frame", o.Seq, "peak", o.Peak, "threshold", w.cfg.Threshold)
		if w.cfg.SilenceOutput == SilenceEmptyLine {
			return w.writeLine(ctx, "")
		}
		return nil

	case OutcomeDiscard:
		w.stats.Discarded++
		reason := o.reason()
		w.metrics.RecordFrameDiscarded(ctx, string(reason))
		slog.Warn("frame discarded", "frame", o.Seq, "reason", string(reason), "err", o.Err)
		return nil

	case OutcomeEngineFailure:
		w.stats.Failed++
		slog.Error("transcription failed", "frame", o.Seq, "engine", w.cfg.EngineName, "err", o.Err)
		return w.backoff(ctx)

	default:
		return fmt.Errorf("worker: unexpected outcome %s", o.Kind)
	}
}

func (w *Worker) writeLine(ctx context.Context, text string) error {
	if err := w.out.WriteLine(text); err != nil {
		return err
	}
	w.stats.LinesWritten++
	w.metrics.RecordLine(ctx)
	return nil
}

func (w *Worker) backoff(ctx context.Context) error {
	if w.cfg.ErrorBackoff <= 0 {
		return nil
	}
	t := time.NewTimer(w.cfg.ErrorBackoff)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Log writes the run summary at info.
func (s Stats) Log(logger *slog.Logger) {
	logger.Info("worker summary",
		"frames_read", s.FramesRead,
		"transcribed", s.Transcribed,
		"silent", s.Silent,
		"discarded", s.Discarded,
		"failed", s.Failed,
		"lines_written", s.LinesWritten,
	)
}
