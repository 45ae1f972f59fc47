package editor

import (
	"fmt"

	"github.com/Dhanuzh/refactorai/internal/stream"
)

// Mode selects how a StreamWriter places streamed text.
type Mode int

const (
	// ModeInsert inserts each delta at an advancing cursor, after one
	// leading newline.
	ModeInsert Mode = iota
	// ModeReplaceAccumulated replaces the target span with everything
	// received so far after each delta.
	ModeReplaceAccumulated
)

func (m Mode) String() string {
	switch m {
	case ModeInsert:
		return "insert"
	case ModeReplaceAccumulated:
		return "replace"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// StreamWriter applies the deltas of one streaming operation to a
// document. After a rejected edit every later Write returns the same
// error.
type StreamWriter struct {
	app    *Applicator
	mode   Mode
	cursor *Cursor
	span   Range // ModeReplaceAccumulated: the text currently owned
	acc    stream.Accumulator
	writes int
	err    error
}

// NewStreamWriter claims the insertion point for target and returns a
// writer. ModeInsert writes at target.End; ModeReplaceAccumulated
// overwrites target.
func NewStreamWriter(app *Applicator, doc Document, target Range, mode Mode) (*StreamWriter, error) {
	target = target.Normalize()
	at := target.End
	if mode == ModeReplaceAccumulated {
		at = target.Start
	}
	cursor, err := app.Claim(doc, at)
	if err != nil {
		return nil, err
	}
	return &StreamWriter{app: app, mode: mode, cursor: cursor, span: target}, nil
}

// Write applies one delta. Empty deltas are ignored.
func (w *StreamWriter) Write(delta string) error {
	if w.err != nil {
		return w.err
	}
	if delta == "" {
		return nil
	}

	switch w.mode {
	case ModeReplaceAccumulated:
		text := w.acc.Append(delta)
		if err := w.app.ReplaceRange(w.cursor.doc, w.span, text); err != nil {
			w.err = err
			return err
		}
		w.span.End = Advance(w.span.Start, text)
	default:
		if w.writes == 0 {
			if err := w.cursor.Insert("\n"); err != nil {
				w.err = err
				return err
			}
		}
		if err := w.cursor.Insert(delta); err != nil {
			w.err = err
			return err
		}
		w.acc.Append(delta)
	}
	w.writes++
	return nil
}

// Cursor returns the writer's insertion point.
func (w *StreamWriter) Cursor() *Cursor { return w.cursor }

// Span returns the range covered by the written text so far.
func (w *StreamWriter) Span() Range {
	if w.mode == ModeReplaceAccumulated {
		return w.span
	}
	return Range{Start: w.span.End, End: w.cursor.Position()}
}

// Text returns everything written so far.
func (w *StreamWriter) Text() string { return w.acc.String() }

// Err returns the edit error that stopped the writer, if any.
func (w *StreamWriter) Err() error { return w.err }

// Close releases the insertion point.
func (w *StreamWriter) Close() {
	w.cursor.Release()
}
