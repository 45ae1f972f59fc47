package bridge

import (
	"github.com/Dhanuzh/refactorai/internal/editor"
)

// mirrorDocument applies edits to a shadow copy of the editor's document
// and forwards each one to the editor. The shadow buffer counts code
// points; forwarded ranges are converted to UTF-16 code units against the
// text as it was before the edit.
type mirrorDocument struct {
	*editor.Buffer
	execID  string
	session *Session
}

func newMirrorDocument(execID string, snap Snapshot, s *Session) *mirrorDocument {
	return &mirrorDocument{
		Buffer:  editor.NewBuffer(snap.URI, snap.Text),
		execID:  execID,
		session: s,
	}
}

func (d *mirrorDocument) Insert(pos editor.Position, text string) error {
	at := editor.ToUTF16(d.Buffer.Text(), pos)
	if err := d.Buffer.Insert(pos, text); err != nil {
		return err
	}
	return d.forward(Edit{Kind: EditInsert, Range: editor.Range{Start: at, End: at}, Text: text})
}

func (d *mirrorDocument) Replace(r editor.Range, text string) error {
	r = r.Normalize()
	before := d.Buffer.Text()
	if err := d.Buffer.Replace(r, text); err != nil {
		return err
	}
	kind := EditReplace
	if r.IsEmpty() {
		kind = EditInsert
	}
	wire := editor.Range{Start: editor.ToUTF16(before, r.Start), End: editor.ToUTF16(before, r.End)}
	return d.forward(Edit{Kind: kind, Range: wire, Text: text})
}

// forward closes the shadow buffer when the editor cannot be reached, so
// the running operation stops at its next edit.
func (d *mirrorDocument) forward(e Edit) error {
	if err := d.session.send(Message{Type: TypeEdit, ID: d.execID, Edit: &e}); err != nil {
		d.Buffer.Close()
		return err
	}
	return nil
}
