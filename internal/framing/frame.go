// Package framing splits the worker's input stream into audio frames.
//
// Two wire formats are supported:
//
//   - Fixed: every frame is exactly ChunkSize bytes of little-endian float32
//     samples, with no header or delimiter. A short tail ends the stream.
//   - Length-prefixed: every frame is an ASCII decimal byte count followed by
//     '\n', that many bytes of little-endian PCM16 samples, and a trailing
//     '\n'.
//
// [Reader.Next] returns a [Frame], io.EOF when the stream is exhausted, or a
// *[MalformedError] for a frame that was discarded. Malformed frames are
// recoverable: the reader has already resynchronised and the next call reads
// the following frame.
package framing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/pipescribe/pkg/audio"
)

// Mode selects the wire format.
type Mode int

const (
	// ModeLengthPrefixed reads "<len>\n<PCM16 bytes>\n" frames.
	ModeLengthPrefixed Mode = iota
	// ModeFixed reads fixed-size blocks of float32 samples.
	ModeFixed
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeLengthPrefixed:
		return "length-prefixed"
	case ModeFixed:
		return "fixed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ErrUnknownMode is returned by [ParseMode] for an unrecognised name.
var ErrUnknownMode = errors.New("framing: unknown mode")

// ParseMode converts a configuration name ("length-prefixed" or "fixed") to
// a Mode. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "length-prefixed", "length", "pcm16":
		return ModeLengthPrefixed, nil
	case "fixed", "float32":
		return ModeFixed, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownMode, s)
	}
}

// Encoding reports the sample encoding carried by frames of this mode.
func (m Mode) Encoding() audio.Encoding {
	if m == ModeFixed {
		return audio.EncodingFloat32LE
	}
	return audio.EncodingPCM16LE
}

// Frame is one unit of work read from the stream.
type Frame struct {
	// Seq is the 1-based position of the frame among all frames the reader
	// attempted, including discarded ones.
	Seq uint64

	// Declared is the payload length announced by the sender (ChunkSize in
	// fixed mode). len(Data) == Declared for every returned frame.
	Declared int

	// Data holds the raw payload bytes.
	Data []byte

	// Encoding is the sample encoding of Data.
	Encoding audio.Encoding
}

// Reason classifies why a frame was discarded.
type Reason string

const (
	ReasonBadLength        Reason = "bad-length"
	ReasonShortRead        Reason = "short-read"
	ReasonMissingDelimiter Reason = "missing-delimiter"
	ReasonOversize         Reason = "oversize"
	// ReasonDecode is reported by callers whose sample decoder rejected a
	// frame that passed the length checks.
	ReasonDecode Reason = "decode"
)

// MalformedError describes a discarded frame. It is always recoverable.
type MalformedError struct {
	Seq    uint64
	Reason Reason

	// Token is the offending length line for ReasonBadLength.
	Token string

	// Expected and Got are byte counts for ReasonShortRead and
	// ReasonOversize, or the expected and actual delimiter byte for
	// ReasonMissingDelimiter.
	Expected int
	Got      int

	// Err is the underlying error, if any.
	Err error
}

// Error implements error.
func (e *MalformedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "framing: frame %d discarded: %s", e.Seq, e.Reason)
	switch e.Reason {
	case ReasonBadLength:
		fmt.Fprintf(&b, " (token %q)", e.Token)
	case ReasonShortRead:
		fmt.Fprintf(&b, " (expected %d bytes, got %d)", e.Expected, e.Got)
	case ReasonOversize:
		fmt.Fprintf(&b, " (declared %d bytes, limit %d)", e.Got, e.Expected)
	case ReasonMissingDelimiter:
		if e.Got < 0 {
			fmt.Fprintf(&b, " (expected %q, got end of stream)", byte(e.Expected))
		} else {
			fmt.Fprintf(&b, " (expected %q, got %q)", byte(e.Expected), byte(e.Got))
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *MalformedError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is (or wraps) a *MalformedError and
// returns it.
func IsMalformed(err error) (*MalformedError, bool) {
	var me *MalformedError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
