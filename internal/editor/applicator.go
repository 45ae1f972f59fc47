package editor

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/logging"
)

var (
	// ErrEditRejected wraps every failed mutation. Edits applied before the
	// failure stay applied.
	ErrEditRejected = errors.New("edit rejected")
	// ErrInsertionPointBusy is returned when another streaming operation
	// already owns the insertion point.
	ErrInsertionPointBusy = errors.New("insertion point is owned by another operation")
)

// Applicator applies edits to documents and hands out exclusive
// insertion points for streaming operations.
type Applicator struct {
	logger *zap.Logger

	mu     sync.Mutex
	claims map[string]map[*Cursor]struct{} // by document URI
}

// NewApplicator creates an applicator. logger may be nil.
func NewApplicator(logger *zap.Logger) *Applicator {
	return &Applicator{
		logger: logging.OrNop(logger),
		claims: make(map[string]map[*Cursor]struct{}),
	}
}

// InsertAt inserts text at pos and returns the position just past it.
func (a *Applicator) InsertAt(doc Document, pos Position, text string) (Position, error) {
	if doc.Closed() {
		return pos, a.reject(doc, "insert", ErrDocumentClosed)
	}
	if err := doc.Insert(pos, text); err != nil {
		return pos, a.reject(doc, "insert", err)
	}
	return Advance(pos, text), nil
}

// ReplaceRange replaces rng with text.
func (a *Applicator) ReplaceRange(doc Document, rng Range, text string) error {
	if doc.Closed() {
		return a.reject(doc, "replace", ErrDocumentClosed)
	}
	if err := doc.Replace(rng.Normalize(), text); err != nil {
		return a.reject(doc, "replace", err)
	}
	return nil
}

func (a *Applicator) reject(doc Document, op string, err error) error {
	a.logger.Debug("edit rejected",
		zap.String("uri", doc.URI()),
		zap.String("op", op),
		zap.Error(err))
	return fmt.Errorf("%w: %s %s: %w", ErrEditRejected, op, doc.URI(), err)
}

// Claim takes exclusive ownership of pos in doc. The returned cursor must
// be released when the operation ends.
func (a *Applicator) Claim(doc Document, pos Position) (*Cursor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	owned := a.claims[doc.URI()]
	for c := range owned {
		if c.pos == pos {
			return nil, fmt.Errorf("%w: %s at %s", ErrInsertionPointBusy, doc.URI(), pos)
		}
	}
	if owned == nil {
		owned = make(map[*Cursor]struct{})
		a.claims[doc.URI()] = owned
	}
	c := &Cursor{app: a, doc: doc, pos: pos}
	owned[c] = struct{}{}
	return c, nil
}

// Cursor is an insertion point owned by one operation. It only moves
// forward as text is inserted.
type Cursor struct {
	app *Applicator
	doc Document

	// guarded by app.mu
	pos      Position
	released bool
}

// Document returns the document the cursor belongs to.
func (c *Cursor) Document() Document { return c.doc }

// Position returns the current insertion point.
func (c *Cursor) Position() Position {
	c.app.mu.Lock()
	defer c.app.mu.Unlock()
	return c.pos
}

// Insert writes text at the cursor and advances past it.
func (c *Cursor) Insert(text string) error {
	pos := c.Position()
	next, err := c.app.InsertAt(c.doc, pos, text)
	if err != nil {
		return err
	}
	c.app.mu.Lock()
	c.pos = next
	c.app.mu.Unlock()
	return nil
}

// Release gives up ownership. It is safe to call more than once.
func (c *Cursor) Release() {
	c.app.mu.Lock()
	defer c.app.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	uri := c.doc.URI()
	delete(c.app.claims[uri], c)
	if len(c.app.claims[uri]) == 0 {
		delete(c.app.claims, uri)
	}
}
