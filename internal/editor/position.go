// Package editor models the text documents that commands edit and applies
// edits to them, including incremental insertion of streamed text.
package editor

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Position is a zero-based line and character offset. Character counts
// Unicode code points within the line.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Compare returns -1, 0 or 1.
func (p Position) Compare(o Position) int {
	switch {
	case p.Line < o.Line:
		return -1
	case p.Line > o.Line:
		return 1
	case p.Character < o.Character:
		return -1
	case p.Character > o.Character:
		return 1
	}
	return 0
}

// Before reports whether p sorts before o.
func (p Position) Before(o Position) bool {
	return p.Compare(o) < 0
}

// Range is a span of a document. Start <= End once normalized.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewRange returns the normalized range between a and b.
func NewRange(a, b Position) Range {
	return Range{Start: a, End: b}.Normalize()
}

// Normalize swaps the ends of a backwards range.
func (r Range) Normalize() Range {
	if r.End.Before(r.Start) {
		return Range{Start: r.End, End: r.Start}
	}
	return r
}

// IsEmpty reports whether the range selects nothing.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// ParseRange parses "L:C-L:C" (zero-based). A bare "L:C" is an empty range.
func ParseRange(s string) (Range, error) {
	startStr, endStr, found := strings.Cut(strings.TrimSpace(s), "-")
	start, err := parsePosition(startStr)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	if !found {
		return Range{Start: start, End: start}, nil
	}
	end, err := parsePosition(endStr)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return NewRange(start, end), nil
}

func parsePosition(s string) (Position, error) {
	lineStr, charStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Position{}, fmt.Errorf("position %q is not LINE:CHAR", s)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 0 {
		return Position{}, fmt.Errorf("bad line in %q", s)
	}
	char, err := strconv.Atoi(charStr)
	if err != nil || char < 0 {
		return Position{}, fmt.Errorf("bad character in %q", s)
	}
	return Position{Line: line, Character: char}, nil
}

// Advance returns the position just past text inserted at pos.
func Advance(pos Position, text string) Position {
	n := strings.Count(text, "\n")
	if n == 0 {
		pos.Character += utf8.RuneCountInString(text)
		return pos
	}
	last := text[strings.LastIndexByte(text, '\n')+1:]
	return Position{Line: pos.Line + n, Character: utf8.RuneCountInString(last)}
}
