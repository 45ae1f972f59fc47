// Package stream decodes event-stream chat completion responses into
// ordered text deltas.
package stream

import (
	"fmt"
	"unicode/utf8"
)

// EventKind identifies what a decoded record carried.
type EventKind int

const (
	// Delta carries a fragment of generated text.
	Delta EventKind = iota
	// Done marks the end-of-stream sentinel.
	Done
	// Malformed marks a record that could not be parsed.
	Malformed
)

func (k EventKind) String() string {
	switch k {
	case Delta:
		return "delta"
	case Done:
		return "done"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one decoded stream record.
type Event struct {
	Kind EventKind
	Text string // Delta only
	Raw  string // Malformed only: the offending line
	Err  error  // Malformed only
}

// MalformedError describes a record that is not a valid delta.
type MalformedError struct {
	Line string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed stream record %q: %v", truncate(e.Line, 80), e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
