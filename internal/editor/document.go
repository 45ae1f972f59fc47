package editor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	// ErrDocumentClosed is returned when editing a closed document.
	ErrDocumentClosed = errors.New("document closed")
	// ErrOutOfRange is returned for a position outside the document.
	ErrOutOfRange = errors.New("position out of range")
)

// Document is an editable text buffer. Every Insert or Replace is one
// atomic mutation that bumps Version.
type Document interface {
	URI() string
	Version() int
	Text() string
	TextRange(r Range) (string, error)
	Insert(pos Position, text string) error
	Replace(r Range, text string) error
	Closed() bool
}

// Buffer is an in-memory Document, optionally backed by a file.
type Buffer struct {
	mu      sync.RWMutex
	uri     string
	path    string
	perm    os.FileMode
	text    string
	version int
	closed  bool
}

// NewBuffer returns a buffer holding text.
func NewBuffer(uri, text string) *Buffer {
	return &Buffer{uri: uri, text: text, perm: 0644}
}

// LoadFile reads path into a buffer that Save writes back.
func LoadFile(path string) (*Buffer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", path)
	}
	return &Buffer{
		uri:  "file://" + filepath.ToSlash(abs),
		path: abs,
		perm: info.Mode().Perm(),
		text: string(data),
	}, nil
}

func (b *Buffer) URI() string { return b.uri }

// Path returns the backing file, or "" for a memory-only buffer.
func (b *Buffer) Path() string { return b.path }

func (b *Buffer) Version() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

func (b *Buffer) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Close marks the buffer closed; later edits fail.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *Buffer) TextRange(r Range) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start, end, err := b.offsets(r)
	if err != nil {
		return "", err
	}
	return b.text[start:end], nil
}

func (b *Buffer) Insert(pos Position, text string) error {
	return b.Replace(Range{Start: pos, End: pos}, text)
}

func (b *Buffer) Replace(r Range, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDocumentClosed
	}
	start, end, err := b.offsets(r)
	if err != nil {
		return err
	}
	b.text = b.text[:start] + text + b.text[end:]
	b.version++
	return nil
}

// Save writes the buffer back to its file through a temporary file and
// rename, keeping the original permissions.
func (b *Buffer) Save() error {
	b.mu.RLock()
	path, perm, text := b.path, b.perm, b.text
	b.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("buffer %s has no backing file", b.uri)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	ok = true
	return nil
}

func (b *Buffer) offsets(r Range) (int, int, error) {
	r = r.Normalize()
	start, err := offsetOf(b.text, r.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := offsetOf(b.text, r.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// offsetOf converts pos to a byte offset. The end of a line (before its
// newline) is a valid position; anything past it is not.
func offsetOf(text string, pos Position) (int, error) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, pos)
	}
	off := 0
	for line := 0; line < pos.Line; line++ {
		i := strings.IndexByte(text[off:], '\n')
		if i < 0 {
			return 0, fmt.Errorf("%w: line %d of %d", ErrOutOfRange, pos.Line, line+1)
		}
		off += i + 1
	}

	lineText := text[off:]
	if i := strings.IndexByte(lineText, '\n'); i >= 0 {
		lineText = lineText[:i]
	}
	chars := 0
	for i := range lineText {
		if chars == pos.Character {
			return off + i, nil
		}
		chars++
	}
	if chars == pos.Character {
		return off + len(lineText), nil
	}
	return 0, fmt.Errorf("%w: %s (line has %d characters)", ErrOutOfRange, pos, chars)
}
