package worker

import (
	"bytes"
	"testing"
)

// flushCounter records every Write so tests can see that each line reaches
// the underlying writer on its own.
type flushCounter struct {
	bytes.Buffer
	writes int
}

func (f *flushCounter) Write(p []byte) (int, error) {
	f.writes++
	return f.Buffer.Write(p)
}

func TestOutput_WriteLineFlushesEachLine(t *testing.T) {
	var fc flushCounter
	o := NewOutput(&fc)

	if err := o.WriteLine("first"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if fc.String() != "first\n" || fc.writes != 1 {
		t.Fatalf("after first line: %q (%d writes)", fc.String(), fc.writes)
	}
	if err := o.WriteLine(""); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if fc.String() != "first\n\n" || fc.writes != 2 {
		t.Fatalf("after second line: %q (%d writes)", fc.String(), fc.writes)
	}
	if o.Lines() != 2 {
		t.Errorf("Lines = %d, want 2", o.Lines())
	}
}

func TestOutput_ReplacesLineBreaks(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a\nb", "a b\n"},
		{"a\r\nb", "a b\n"},
		{"a\rb", "a b\n"},
		{"plain", "plain\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := NewOutput(&buf).WriteLine(tt.in); err != nil {
			t.Fatalf("WriteLine(%q): %v", tt.in, err)
		}
		if buf.String() != tt.want {
			t.Errorf("WriteLine(%q) wrote %q, want %q", tt.in, buf.String(), tt.want)
		}
	}
}
