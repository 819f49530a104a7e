package framing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

const (
	// DefaultChunkSize is the fixed-mode frame size: two seconds of 16 kHz
	// float32 audio.
	DefaultChunkSize = 32000 * 4

	// DefaultMaxFrameBytes bounds the payload a length line may announce.
	DefaultMaxFrameBytes = 16 << 20

	// maxLengthLine bounds the bytes kept from a length line. Longer lines
	// are consumed up to their newline and reported as bad-length.
	maxLengthLine = 64

	readBufferSize = 64 << 10
)

// Config configures a Reader.
type Config struct {
	Mode Mode

	// ChunkSize is the frame size in bytes for ModeFixed. Zero selects
	// DefaultChunkSize.
	ChunkSize int

	// MaxFrameBytes is the largest payload accepted in ModeLengthPrefixed.
	// Larger frames are skipped without buffering. Zero selects
	// DefaultMaxFrameBytes.
	MaxFrameBytes int
}

// Reader reads frames from an underlying byte stream. It is not safe for
// concurrent use.
type Reader struct {
	br  *bufio.Reader
	cfg Config
	seq uint64
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, cfg Config) *Reader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = DefaultMaxFrameBytes
	}
	return &Reader{br: bufio.NewReaderSize(r, readBufferSize), cfg: cfg}
}

// Mode returns the wire format this reader decodes.
func (r *Reader) Mode() Mode { return r.cfg.Mode }

// Next reads the next frame.
//
// It returns io.EOF once the stream is exhausted, a *MalformedError when a
// frame had to be discarded (the reader is positioned at the next frame), or
// any other error when the underlying stream failed. Only the last case is
// not recoverable.
func (r *Reader) Next() (Frame, error) {
	if r.cfg.Mode == ModeFixed {
		return r.nextFixed()
	}
	return r.nextLengthPrefixed()
}

func (r *Reader) nextFixed() (Frame, error) {
	buf := make([]byte, r.cfg.ChunkSize)
	n, err := io.ReadFull(r.br, buf)
	switch {
	case err == nil:
		r.seq++
		return Frame{Seq: r.seq, Declared: n, Data: buf, Encoding: r.cfg.Mode.Encoding()}, nil
	case errors.Is(err, io.EOF):
		return Frame{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		slog.Info("framing: end of stream inside a chunk, dropping partial tail",
			"bytes", n, "chunk_size", r.cfg.ChunkSize)
		return Frame{}, io.EOF
	default:
		return Frame{}, fmt.Errorf("framing: read chunk: %w", err)
	}
}

func (r *Reader) nextLengthPrefixed() (Frame, error) {
	line, truncated, err := r.readLengthLine()
	if err != nil {
		return Frame{}, err
	}

	tok := strings.TrimSpace(line)
	if tok == "" {
		// A blank line right before the end of the stream is how some
		// senders signal completion.
		if _, perr := r.br.Peek(1); perr != nil {
			if errors.Is(perr, io.EOF) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("framing: read length line: %w", perr)
		}
	}

	r.seq++
	seq := r.seq

	if truncated {
		return Frame{}, &MalformedError{Seq: seq, Reason: ReasonBadLength, Token: tok + "..."}
	}
	declared, perr := strconv.ParseUint(tok, 10, 62)
	if perr != nil {
		return Frame{}, &MalformedError{Seq: seq, Reason: ReasonBadLength, Token: tok, Err: perr}
	}
	n := int(declared)

	if n > r.cfg.MaxFrameBytes {
		// Skip the payload and its delimiter without buffering them.
		if _, err := io.CopyN(io.Discard, r.br, int64(n)+1); err != nil && !errors.Is(err, io.EOF) {
			return Frame{}, fmt.Errorf("framing: skip oversize frame: %w", err)
		}
		return Frame{}, &MalformedError{Seq: seq, Reason: ReasonOversize, Expected: r.cfg.MaxFrameBytes, Got: n}
	}

	data := make([]byte, n)
	got, err := io.ReadFull(r.br, data)
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("framing: read payload: %w", err)
		}
		// Best-effort resync: the delimiter the sender would have written
		// after the payload is usually the next byte.
		_, _ = r.br.ReadByte()
		return Frame{}, &MalformedError{Seq: seq, Reason: ReasonShortRead, Expected: n, Got: got}
	}

	delim, err := r.br.ReadByte()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return Frame{}, fmt.Errorf("framing: read delimiter: %w", err)
		}
		return Frame{}, &MalformedError{Seq: seq, Reason: ReasonMissingDelimiter, Expected: '\n', Got: -1, Err: io.ErrUnexpectedEOF}
	}
	if delim != '\n' {
		return Frame{}, &MalformedError{Seq: seq, Reason: ReasonMissingDelimiter, Expected: '\n', Got: int(delim)}
	}

	return Frame{Seq: seq, Declared: n, Data: data, Encoding: r.cfg.Mode.Encoding()}, nil
}

// readLengthLine reads up to and including the next '\n'. It returns io.EOF
// only when the stream ended before any byte of the line. At most
// maxLengthLine bytes of the line are kept; truncated reports whether more
// were consumed.
func (r *Reader) readLengthLine() (line string, truncated bool, err error) {
	var (
		b    strings.Builder
		seen int
	)
	for {
		chunk, err := r.br.ReadSlice('\n')
		seen += len(chunk)
		if room := maxLengthLine - b.Len(); room > 0 && len(chunk) > 0 {
			b.Write(chunk[:min(room, len(chunk))])
		}
		truncated = seen > maxLengthLine
		switch {
		case err == nil:
			return b.String(), truncated, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if seen == 0 {
				return "", false, io.EOF
			}
			return b.String(), truncated, nil
		default:
			return "", false, fmt.Errorf("framing: read length line: %w", err)
		}
	}
}
