package stream

import "strings"

// Accumulator is the append-only concatenation of every delta seen so far.
type Accumulator struct {
	sb strings.Builder
}

// Append adds delta and returns the accumulated text.
func (a *Accumulator) Append(delta string) string {
	a.sb.WriteString(delta)
	return a.sb.String()
}

func (a *Accumulator) String() string {
	return a.sb.String()
}

// Len returns the accumulated length in bytes.
func (a *Accumulator) Len() int {
	return a.sb.Len()
}
