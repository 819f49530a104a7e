package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// pcm16Scale is the divisor applied to signed 16-bit samples. Using 32767
// maps the most positive sample to exactly 1.0; the most negative sample
// lands just below -1.0 and is clamped.
const pcm16Scale = 32767.0

// ErrUnknownEncoding is returned by [Decode] for an [Encoding] it does not
// understand.
var ErrUnknownEncoding = errors.New("audio: unknown encoding")

// ErrSampleOutOfRange is wrapped by [SampleError].
var ErrSampleOutOfRange = errors.New("audio: sample out of range")

// SampleError reports the first float32 sample that is NaN, infinite or
// outside [-1.0, 1.0].
type SampleError struct {
	Index int
	Value float32
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("audio: sample %d is %v, want a finite value in [-1, 1]", e.Index, e.Value)
}

func (e *SampleError) Unwrap() error { return ErrSampleOutOfRange }

// Decode converts a frame payload into a [Waveform] according to enc.
// Float32 payloads are checked with [CheckRange] so that every returned
// waveform holds samples in [-1.0, 1.0].
func Decode(enc Encoding, data []byte) (Waveform, error) {
	switch enc {
	case EncodingFloat32LE:
		w := DecodeFloat32LE(data)
		if err := CheckRange(w); err != nil {
			return nil, err
		}
		return w, nil
	case EncodingPCM16LE:
		return DecodePCM16LE(data), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, enc)
	}
}

// DecodeFloat32LE interprets data as consecutive little-endian IEEE-754
// float32 values. A trailing partial sample (len(data) not a multiple of
// four) is ignored. Sample values are passed through bit-for-bit so that
// [EncodeFloat32LE] reproduces the input exactly. Values are not range
// checked; [Decode] does that.
func DecodeFloat32LE(data []byte) Waveform {
	n := len(data) / 4
	w := make(Waveform, n)
	for i := range n {
		w[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return w
}

// CheckRange returns a *SampleError for the first sample of w that is NaN,
// infinite or outside [-1.0, 1.0].
func CheckRange(w Waveform) error {
	for i, s := range w {
		if s != s || s < -1 || s > 1 {
			return &SampleError{Index: i, Value: s}
		}
	}
	return nil
}

// EncodeFloat32LE is the inverse of [DecodeFloat32LE].
func EncodeFloat32LE(w Waveform) []byte {
	out := make([]byte, len(w)*4)
	for i, s := range w {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// DecodePCM16LE converts signed 16-bit little-endian PCM into samples by
// dividing by 32767. A trailing odd byte is ignored. The result is clamped to
// [-1.0, 1.0], which only affects the sample -32768.
func DecodePCM16LE(data []byte) Waveform {
	n := len(data) / 2
	w := make(Waveform, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
		v := float32(float64(sample) / pcm16Scale)
		if v < -1 {
			v = -1
		}
		w[i] = v
	}
	return w
}

// EncodePCM16LE quantises w to signed 16-bit little-endian PCM using the same
// 32767 scale as [DecodePCM16LE]. Samples outside [-1.0, 1.0] are clamped.
func EncodePCM16LE(w Waveform) []byte {
	out := make([]byte, len(w)*2)
	for i, s := range w {
		v := math.Round(float64(s) * pcm16Scale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
