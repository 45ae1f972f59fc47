package editor

import (
	"strings"
	"unicode/utf16"
)

// ToUTF16 converts p, whose Character counts code points, to UTF-16 code
// units on the same line of text. Offsets past the end of the line carry
// over unchanged.
func ToUTF16(text string, p Position) Position {
	units, runes := 0, 0
	for _, r := range lineAt(text, p.Line) {
		if runes == p.Character {
			break
		}
		units += utf16.RuneLen(r)
		runes++
	}
	p.Character = units + p.Character - runes
	return p
}

// FromUTF16 is the inverse of ToUTF16. An offset that falls inside a
// surrogate pair rounds up to the end of that code point.
func FromUTF16(text string, p Position) Position {
	units, runes := 0, 0
	for _, r := range lineAt(text, p.Line) {
		if units >= p.Character {
			break
		}
		units += utf16.RuneLen(r)
		runes++
	}
	p.Character = runes + max(p.Character-units, 0)
	return p
}

// lineAt returns line n of text without its terminator, or "" when text
// has fewer lines.
func lineAt(text string, n int) string {
	for ; n > 0; n-- {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			return ""
		}
		text = text[i+1:]
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return text
}
