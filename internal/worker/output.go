package worker

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Output writes one result line per frame and flushes after every line so
// the parent process sees results as soon as they exist.
type Output struct {
	bw    *bufio.Writer
	lines uint64
}

// NewOutput returns an Output writing to w.
func NewOutput(w io.Writer) *Output {
	return &Output{bw: bufio.NewWriter(w)}
}

// WriteLine writes text followed by a newline. Line breaks inside text are
// replaced with spaces.
func (o *Output) WriteLine(text string) error {
	if _, err := o.bw.WriteString(lineBreaks.Replace(text)); err != nil {
		return fmt.Errorf("worker: write line: %w", err)
	}
	if err := o.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("worker: write line: %w", err)
	}
	if err := o.bw.Flush(); err != nil {
		return fmt.Errorf("worker: flush line: %w", err)
	}
	o.lines++
	return nil
}

// Lines returns the number of lines written.
func (o *Output) Lines() uint64 { return o.lines }

// Flush flushes any buffered bytes.
func (o *Output) Flush() error { return o.bw.Flush() }
