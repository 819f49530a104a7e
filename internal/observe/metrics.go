// Package observe provides application-wide observability primitives for
// pipescribe: OpenTelemetry metrics, tracing, trace-correlated logging, and
// HTTP middleware for the admin listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pipescribe metrics.
const meterName = "github.com/MrWong99/pipescribe"

// Transcription status attribute values.
const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Frame counters ---

	// FramesRead counts frames accepted by the frame reader. Use with
	// attribute.String("framing", ...).
	FramesRead metric.Int64Counter

	// FramesDiscarded counts malformed frames. Use with
	// attribute.String("reason", ...).
	FramesDiscarded metric.Int64Counter

	// FramesSilent counts frames rejected by the activity gate.
	FramesSilent metric.Int64Counter

	// LinesWritten counts result lines written to stdout.
	LinesWritten metric.Int64Counter

	// --- Engine ---

	// Transcriptions counts engine calls. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	Transcriptions metric.Int64Counter

	// TranscribeDuration tracks engine call latency.
	TranscribeDuration metric.Float64Histogram

	// EngineErrors counts failed engine calls, including recovered panics.
	// Use with attribute.String("engine", ...).
	EngineErrors metric.Int64Counter

	// --- Audio ---

	// FramePeak records the peak absolute amplitude of every decoded frame.
	FramePeak metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks admin HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for batch
// recognition of chunks up to a few seconds long.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// peakBuckets spans the thresholds deployments typically use.
var peakBuckets = []float64{
	0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesRead, err = m.Int64Counter("pipescribe.frames.read",
		metric.WithDescription("Total frames read from the input stream by framing mode."),
	); err != nil {
		return nil, err
	}
	if met.FramesDiscarded, err = m.Int64Counter("pipescribe.frames.discarded",
		metric.WithDescription("Total malformed frames discarded by reason."),
	); err != nil {
		return nil, err
	}
	if met.FramesSilent, err = m.Int64Counter("pipescribe.frames.silent",
		metric.WithDescription("Total frames classified silent by the activity gate."),
	); err != nil {
		return nil, err
	}
	if met.LinesWritten, err = m.Int64Counter("pipescribe.lines.written",
		metric.WithDescription("Total result lines written to the output stream."),
	); err != nil {
		return nil, err
	}
	if met.Transcriptions, err = m.Int64Counter("pipescribe.transcriptions",
		metric.WithDescription("Total engine calls by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("pipescribe.engine.errors",
		metric.WithDescription("Total failed engine calls by engine."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("pipescribe.transcribe.duration",
		metric.WithDescription("Latency of one engine call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramePeak, err = m.Float64Histogram("pipescribe.frame.peak",
		metric.WithDescription("Peak absolute amplitude of decoded frames."),
		metric.WithExplicitBucketBoundaries(peakBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pipescribe.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameRead records one accepted frame.
func (m *Metrics) RecordFrameRead(ctx context.Context, framing string) {
	m.FramesRead.Add(ctx, 1, metric.WithAttributes(attribute.String("framing", framing)))
}

// RecordFrameDiscarded records one malformed frame.
func (m *Metrics) RecordFrameDiscarded(ctx context.Context, reason string) {
	m.FramesDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordFrameSilent records one gated frame.
func (m *Metrics) RecordFrameSilent(ctx context.Context) {
	m.FramesSilent.Add(ctx, 1)
}

// RecordPeak records the peak amplitude of a decoded frame.
func (m *Metrics) RecordPeak(ctx context.Context, peak float32) {
	m.FramePeak.Record(ctx, float64(peak))
}

// RecordLine records one result line written.
func (m *Metrics) RecordLine(ctx context.Context) {
	m.LinesWritten.Add(ctx, 1)
}

// RecordTranscription records an engine call with its outcome and latency.
// A StatusError call also increments EngineErrors.
func (m *Metrics) RecordTranscription(ctx context.Context, engine, status string, d time.Duration) {
	m.Transcriptions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("status", status),
		),
	)
	m.TranscribeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("engine", engine)),
	)
	if status == StatusError {
		m.EngineErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
}
