// Package audio holds the sample-level primitives of the transcription
// pipeline: decoding framed bytes into a normalised [Waveform], the
// peak-amplitude activity gate, linear resampling and WAV encoding for engines
// that accept file uploads.
//
// Every function in this package is pure. Identical input bytes always decode
// to identical samples.
package audio

import "fmt"

// EngineSampleRate is the sample rate every speech engine expects, in Hz.
const EngineSampleRate = 16000

// Waveform is an ordered sequence of mono samples in [-1.0, 1.0]. A Waveform
// is never modified after it has been produced; functions that transform
// audio return a new slice.
type Waveform []float32

// Duration returns the length of w in seconds at the given sample rate.
// Returns 0 for a non-positive rate.
func (w Waveform) Duration(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(w)) / float64(sampleRate)
}

// Encoding identifies the byte layout of a frame payload.
type Encoding int

const (
	// EncodingFloat32LE is raw IEEE-754 32-bit little-endian floats, four
	// bytes per sample. Used by the fixed-size framing.
	EncodingFloat32LE Encoding = iota

	// EncodingPCM16LE is signed 16-bit little-endian PCM, two bytes per
	// sample. Used by the length-prefixed framing.
	EncodingPCM16LE
)

// String returns the configuration name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingFloat32LE:
		return "float32le"
	case EncodingPCM16LE:
		return "pcm16le"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// BytesPerSample returns the number of payload bytes that make up one sample,
// or 0 for an unknown encoding.
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingFloat32LE:
		return 4
	case EncodingPCM16LE:
		return 2
	default:
		return 0
	}
}
