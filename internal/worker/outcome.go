package worker

import (
	"fmt"

	"github.com/MrWong99/pipescribe/internal/framing"
)

// OutcomeKind classifies what happened to one frame.
type OutcomeKind int

const (
	// OutcomeText means the engine ran and produced a (possibly empty)
	// result line.
	OutcomeText OutcomeKind = iota

	// OutcomeSilent means the activity gate rejected the frame.
	OutcomeSilent

	// OutcomeDiscard means the frame was malformed or could not be decoded.
	OutcomeDiscard

	// OutcomeEngineFailure means the engine returned an error or panicked.
	OutcomeEngineFailure

	// OutcomeEnd means the input stream is exhausted.
	OutcomeEnd
)

// String returns the lowercase name used in logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeText:
		return "text"
	case OutcomeSilent:
		return "silent"
	case OutcomeDiscard:
		return "discard"
	case OutcomeEngineFailure:
		return "engine-failure"
	case OutcomeEnd:
		return "end"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of processing one frame. Exactly one of the
// kind-specific fields is meaningful.
type Outcome struct {
	Kind OutcomeKind

	// Seq is the frame sequence number (zero for OutcomeEnd).
	Seq uint64

	// Text is the recognised text for OutcomeText.
	Text string

	// Peak is the frame's peak amplitude for OutcomeText and OutcomeSilent.
	Peak float32

	// Err is the *framing.MalformedError for OutcomeDiscard or the
	// *EngineError for OutcomeEngineFailure.
	Err error
}

// reason returns the discard reason of a discard outcome.
func (o Outcome) reason() framing.Reason {
	if me, ok := framing.IsMalformed(o.Err); ok {
		return me.Reason
	}
	return ""
}
