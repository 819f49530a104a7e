package stt

import "time"

// Options are the per-call recognition parameters. The worker pins them for
// the process lifetime except Prompt, which follows the trailing context.
type Options struct {
	// Language is the ISO-639-1 language code to recognise (e.g. "en").
	// Empty lets engines that support it auto-detect.
	Language string

	// BeamSize is the beam-search width. Zero or negative means greedy
	// decoding (engine default).
	BeamSize int

	// Temperature is the sampling temperature. The worker always sends 0 so
	// that identical audio yields identical text.
	Temperature float32

	// Prompt is a soft prefix hint, typically the last few recognised
	// words. Engines use it to bias decoding; it is never echoed back.
	Prompt string

	// VADFilter enables the engine's own voice-activity filter when it has
	// one. Deployments that gate on amplitude upstream often disable it so
	// quiet speech is not suppressed twice.
	VADFilter bool
}

// Segment is one unit of recognised text for part of a waveform.
type Segment struct {
	// Text is the recognised text. Engines may return surrounding
	// whitespace; callers trim.
	Text string

	// Start and End are offsets from the beginning of the waveform. Zero when
	// the engine does not report timing.
	Start time.Duration
	End   time.Duration
}
