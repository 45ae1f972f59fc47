package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamWriterInsert(t *testing.T) {
	app := NewApplicator(nil)
	doc := NewBuffer("mem://a", "x=1")
	sel := NewRange(Position{0, 0}, Position{0, 3})

	w, err := NewStreamWriter(app, doc, sel, ModeInsert)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write("foo"))
	assert.Equal(t, "x=1\nfoo", doc.Text())
	assert.Equal(t, Position{1, 3}, w.Cursor().Position())

	require.NoError(t, w.Write(""))
	require.NoError(t, w.Write("bar"))
	assert.Equal(t, "x=1\nfoobar", doc.Text())
	assert.Equal(t, Position{1, 6}, w.Cursor().Position())
	assert.Equal(t, "foobar", w.Text())
	assert.Equal(t, Range{Start: Position{0, 3}, End: Position{1, 6}}, w.Span())
}

func TestStreamWriterInsertMultiline(t *testing.T) {
	app := NewApplicator(nil)
	doc := NewBuffer("mem://a", "a\nb\nc")

	w, err := NewStreamWriter(app, doc, NewRange(Position{0, 0}, Position{1, 1}), ModeInsert)
	require.NoError(t, err)
	defer w.Close()

	for _, d := range []string{"one\nt", "wo", "\n"} {
		require.NoError(t, w.Write(d))
	}
	assert.Equal(t, "a\nb\none\ntwo\n\nc", doc.Text())
	assert.Equal(t, Position{4, 0}, w.Cursor().Position())
}

func TestStreamWriterReplaceAccumulated(t *testing.T) {
	app := NewApplicator(nil)
	doc := NewBuffer("mem://a", "head\nvar x = 1\ntail")
	sel := NewRange(Position{1, 0}, Position{1, 9})

	w, err := NewStreamWriter(app, doc, sel, ModeReplaceAccumulated)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write("const x"))
	assert.Equal(t, "head\nconst x\ntail", doc.Text())

	require.NoError(t, w.Write(" = 1\n// reason"))
	assert.Equal(t, "head\nconst x = 1\n// reason\ntail", doc.Text())
	assert.Equal(t, Range{Start: Position{1, 0}, End: Position{2, 9}}, w.Span())
}

func TestStreamWriterStopsOnRejectedEdit(t *testing.T) {
	app := NewApplicator(nil)
	doc := NewBuffer("mem://a", "x")

	w, err := NewStreamWriter(app, doc, NewRange(Position{0, 0}, Position{0, 1}), ModeInsert)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write("kept"))
	doc.Close()

	err = w.Write("lost")
	assert.ErrorIs(t, err, ErrEditRejected)
	assert.ErrorIs(t, w.Write("more"), ErrEditRejected)
	assert.Equal(t, err, w.Err())
	assert.Equal(t, "x\nkept", doc.Text(), "earlier edits stay applied")
}

func TestStreamWriterBusyInsertionPoint(t *testing.T) {
	app := NewApplicator(nil)
	doc := NewBuffer("mem://a", "x")
	sel := NewRange(Position{0, 0}, Position{0, 1})

	w, err := NewStreamWriter(app, doc, sel, ModeInsert)
	require.NoError(t, err)

	_, err = NewStreamWriter(app, doc, sel, ModeInsert)
	assert.ErrorIs(t, err, ErrInsertionPointBusy)

	w.Close()
	w2, err := NewStreamWriter(app, doc, sel, ModeInsert)
	require.NoError(t, err)
	w2.Close()
}
