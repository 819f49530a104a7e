package worker

import "strings"

// Carrier keeps the trailing words of the most recent non-empty result and
// offers them to the engine as an advisory prompt for the next frame.
// A zero window disables it.
type Carrier struct {
	window int
	words  []string
}

// NewCarrier returns a Carrier that keeps at most window words.
func NewCarrier(window int) *Carrier {
	if window < 0 {
		window = 0
	}
	return &Carrier{window: window}
}

// Update replaces the context with the trailing words of text. An empty
// text leaves the previous context in place.
func (c *Carrier) Update(text string) {
	if c.window == 0 {
		return
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return
	}
	if len(tokens) > c.window {
		tokens = tokens[len(tokens)-c.window:]
	}
	c.words = append(c.words[:0], tokens...)
}

// Prompt returns the context words joined by single spaces.
func (c *Carrier) Prompt() string {
	return strings.Join(c.words, " ")
}

// Words returns a copy of the current context words.
func (c *Carrier) Words() []string {
	out := make([]string, len(c.words))
	copy(out, c.words)
	return out
}
