package framing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"testing"
)

// ---- helpers ----------------------------------------------------------------

// segmentedReader returns its segments one Read call at a time. A nil
// segment makes that Read return (0, io.EOF) once, which is how a pipe looks
// when the writer briefly closes and a new writer attaches.
type segmentedReader struct {
	segs [][]byte
}

func (s *segmentedReader) Read(p []byte) (int, error) {
	if len(s.segs) == 0 {
		return 0, io.EOF
	}
	seg := s.segs[0]
	if seg == nil {
		s.segs = s.segs[1:]
		return 0, io.EOF
	}
	n := copy(p, seg)
	if n == len(seg) {
		s.segs = s.segs[1:]
	} else {
		s.segs[0] = seg[n:]
	}
	return n, nil
}

// errReader fails every Read with err.
type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func lengthFrame(payload []byte) []byte {
	var b bytes.Buffer
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteByte('\n')
	b.Write(payload)
	b.WriteByte('\n')
	return b.Bytes()
}

func pcm16(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func mustFrame(t *testing.T, r *Reader) Frame {
	t.Helper()
	f, err := r.Next()
	if err != nil {
		t.Fatalf("Next: unexpected error: %v", err)
	}
	return f
}

func mustMalformed(t *testing.T, r *Reader, want Reason) *MalformedError {
	t.Helper()
	_, err := r.Next()
	me, ok := IsMalformed(err)
	if !ok {
		t.Fatalf("Next: expected *MalformedError(%s), got %v", want, err)
	}
	if me.Reason != want {
		t.Fatalf("reason = %s; want %s (%v)", me.Reason, want, me)
	}
	return me
}

func mustEOF(t *testing.T, r *Reader) {
	t.Helper()
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next: expected io.EOF, got %v", err)
	}
}

// ---- length-prefixed mode ---------------------------------------------------

func TestLengthPrefixed_ValidFrames(t *testing.T) {
	p1 := pcm16(0, 1)
	p2 := pcm16(math.MaxInt16, math.MinInt16, 7)
	in := append(lengthFrame(p1), lengthFrame(p2)...)

	r := NewReader(bytes.NewReader(in), Config{Mode: ModeLengthPrefixed})
	f := mustFrame(t, r)
	if !bytes.Equal(f.Data, p1) || f.Declared != 4 || f.Seq != 1 {
		t.Errorf("frame 1 = %+v", f)
	}
	if f.Encoding.String() != "pcm16le" {
		t.Errorf("encoding = %s; want pcm16le", f.Encoding)
	}
	f = mustFrame(t, r)
	if !bytes.Equal(f.Data, p2) || f.Seq != 2 {
		t.Errorf("frame 2 = %+v", f)
	}
	mustEOF(t, r)
	mustEOF(t, r)
}

func TestLengthPrefixed_EmptyStream(t *testing.T) {
	r := NewReader(strings.NewReader(""), Config{})
	mustEOF(t, r)
}

func TestLengthPrefixed_CRLFAndBlanks(t *testing.T) {
	in := append([]byte(" 2 \r\n"), 0x01, 0x02, '\n')
	r := NewReader(bytes.NewReader(in), Config{})
	f := mustFrame(t, r)
	if !bytes.Equal(f.Data, []byte{0x01, 0x02}) {
		t.Errorf("data = %v", f.Data)
	}
}

func TestLengthPrefixed_ZeroLengthFrame(t *testing.T) {
	r := NewReader(strings.NewReader("0\n\n"), Config{})
	f := mustFrame(t, r)
	if len(f.Data) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(f.Data))
	}
	mustEOF(t, r)
}

func TestLengthPrefixed_BadLengthSkipped(t *testing.T) {
	tests := []string{"abc", "-4", "+4", "4.0", "0x10", "99999999999999999999999"}
	for _, tok := range tests {
		t.Run(tok, func(t *testing.T) {
			payload := pcm16(100, -100)
			in := append([]byte(tok+"\n"), lengthFrame(payload)...)
			r := NewReader(bytes.NewReader(in), Config{})

			me := mustMalformed(t, r, ReasonBadLength)
			if me.Token != tok {
				t.Errorf("token = %q; want %q", me.Token, tok)
			}
			f := mustFrame(t, r)
			if !bytes.Equal(f.Data, payload) {
				t.Errorf("next frame data = %v; want %v", f.Data, payload)
			}
			if f.Seq != 2 {
				t.Errorf("seq = %d; want 2", f.Seq)
			}
			mustEOF(t, r)
		})
	}
}

func TestLengthPrefixed_EmptyLineMidStreamIsBadLength(t *testing.T) {
	in := append([]byte("\n"), lengthFrame(pcm16(5))...)
	r := NewReader(bytes.NewReader(in), Config{})
	mustMalformed(t, r, ReasonBadLength)
	mustFrame(t, r)
	mustEOF(t, r)
}

func TestLengthPrefixed_EmptyLineAtEndIsEOF(t *testing.T) {
	in := append(lengthFrame(pcm16(5)), '\n')
	r := NewReader(bytes.NewReader(in), Config{})
	mustFrame(t, r)
	mustEOF(t, r)
}

func TestLengthPrefixed_OverlongLengthLine(t *testing.T) {
	long := "5" + strings.Repeat(" ", 200) + "x"
	in := append([]byte(long+"\n"), lengthFrame(pcm16(1))...)
	r := NewReader(bytes.NewReader(in), Config{})
	mustMalformed(t, r, ReasonBadLength)
	mustFrame(t, r)
}

func TestLengthPrefixed_ShortReadResyncsByOneByte(t *testing.T) {
	// 1000 bytes declared, only 500 arrive before the writer closes. The
	// delimiter of the broken frame arrives afterwards together with the
	// next frame.
	partial := bytes.Repeat([]byte{0x01}, 500)
	next := pcm16(math.MaxInt16, math.MaxInt16)
	r := NewReader(&segmentedReader{segs: [][]byte{
		append([]byte("1000\n"), partial...),
		nil,
		append([]byte("\n"), lengthFrame(next)...),
	}}, Config{})

	me := mustMalformed(t, r, ReasonShortRead)
	if me.Expected != 1000 || me.Got != 500 {
		t.Errorf("expected/got = %d/%d; want 1000/500", me.Expected, me.Got)
	}
	f := mustFrame(t, r)
	if !bytes.Equal(f.Data, next) {
		t.Errorf("frame after resync = %v; want %v", f.Data, next)
	}
	mustEOF(t, r)
}

func TestLengthPrefixed_ShortReadAtEndOfStream(t *testing.T) {
	in := append([]byte("1000\n"), bytes.Repeat([]byte{0x02}, 500)...)
	r := NewReader(bytes.NewReader(in), Config{})
	mustMalformed(t, r, ReasonShortRead)
	mustEOF(t, r)
}

func TestLengthPrefixed_MissingDelimiter(t *testing.T) {
	// The byte after the payload is 'X'; it is consumed and the reader
	// continues with the following length line.
	in := append([]byte("2\n"), 0x10, 0x20, 'X')
	in = append(in, lengthFrame(pcm16(3))...)
	r := NewReader(bytes.NewReader(in), Config{})

	me := mustMalformed(t, r, ReasonMissingDelimiter)
	if me.Got != 'X' {
		t.Errorf("got byte = %q; want 'X'", byte(me.Got))
	}
	f := mustFrame(t, r)
	if !bytes.Equal(f.Data, pcm16(3)) {
		t.Errorf("next frame = %v", f.Data)
	}
	mustEOF(t, r)
}

func TestLengthPrefixed_MissingDelimiterAtEOF(t *testing.T) {
	in := append([]byte("2\n"), 0x10, 0x20)
	r := NewReader(bytes.NewReader(in), Config{})
	me := mustMalformed(t, r, ReasonMissingDelimiter)
	if !errors.Is(me, io.ErrUnexpectedEOF) {
		t.Errorf("expected wrapped io.ErrUnexpectedEOF, got %v", me.Err)
	}
	mustEOF(t, r)
}

func TestLengthPrefixed_OversizeSkipped(t *testing.T) {
	big := bytes.Repeat([]byte{0x7f}, 64)
	in := append(lengthFrame(big), lengthFrame(pcm16(9))...)
	r := NewReader(bytes.NewReader(in), Config{MaxFrameBytes: 32})

	me := mustMalformed(t, r, ReasonOversize)
	if me.Got != 64 || me.Expected != 32 {
		t.Errorf("declared/limit = %d/%d; want 64/32", me.Got, me.Expected)
	}
	f := mustFrame(t, r)
	if !bytes.Equal(f.Data, pcm16(9)) {
		t.Errorf("next frame = %v", f.Data)
	}
	mustEOF(t, r)
}

func TestLengthPrefixed_IOErrorIsTerminal(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(errReader{err: boom}, Config{})
	_, err := r.Next()
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if _, ok := IsMalformed(err); ok {
		t.Fatal("I/O error must not be reported as malformed")
	}
}

// ---- fixed mode -------------------------------------------------------------

func TestFixed_ReadsExactChunks(t *testing.T) {
	in := bytes.Repeat([]byte{1, 2, 3, 4}, 6) // 24 bytes
	r := NewReader(bytes.NewReader(in), Config{Mode: ModeFixed, ChunkSize: 8})
	for i := 1; i <= 3; i++ {
		f := mustFrame(t, r)
		if len(f.Data) != 8 || f.Seq != uint64(i) {
			t.Fatalf("frame %d = %+v", i, f)
		}
		if f.Encoding.String() != "float32le" {
			t.Errorf("encoding = %s; want float32le", f.Encoding)
		}
	}
	mustEOF(t, r)
}

func TestFixed_PartialTailIsEOF(t *testing.T) {
	in := make([]byte, 8+5)
	r := NewReader(bytes.NewReader(in), Config{Mode: ModeFixed, ChunkSize: 8})
	mustFrame(t, r)
	mustEOF(t, r)
}

func TestFixed_DefaultChunkSize(t *testing.T) {
	in := make([]byte, DefaultChunkSize)
	r := NewReader(bytes.NewReader(in), Config{Mode: ModeFixed})
	f := mustFrame(t, r)
	if len(f.Data) != 128000 {
		t.Errorf("chunk = %d bytes; want 128000", len(f.Data))
	}
	mustEOF(t, r)
}

func TestFixed_ChunkAcrossReads(t *testing.T) {
	r := NewReader(&segmentedReader{segs: [][]byte{{1, 2, 3}, {4, 5}, {6, 7, 8}}}, Config{Mode: ModeFixed, ChunkSize: 8})
	f := mustFrame(t, r)
	if !bytes.Equal(f.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("data = %v", f.Data)
	}
}

// ---- modes ------------------------------------------------------------------

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"length-prefixed", ModeLengthPrefixed, false},
		{"FIXED", ModeFixed, false},
		{" fixed ", ModeFixed, false},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v; wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownMode) {
			t.Errorf("ParseMode(%q) error should wrap ErrUnknownMode", tt.in)
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMode(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
	if ModeFixed.String() != "fixed" || ModeLengthPrefixed.String() != "length-prefixed" {
		t.Error("Mode.String does not round-trip ParseMode names")
	}
}

func TestMalformedError_Message(t *testing.T) {
	e := &MalformedError{Seq: 3, Reason: ReasonShortRead, Expected: 1000, Got: 500}
	want := "framing: frame 3 discarded: short-read (expected 1000 bytes, got 500)"
	if e.Error() != want {
		t.Errorf("Error() = %q; want %q", e.Error(), want)
	}
}
