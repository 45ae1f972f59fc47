package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	dataField    = "data:"
	doneSentinel = "[DONE]"
)

// Decoder turns raw transport chunks into events. Chunks need not be
// aligned to lines: an unterminated tail is carried into the next Feed.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	partial []byte
	done    bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the end-of-stream sentinel was seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed consumes one chunk and returns the events of every line it
// completed, in order. After Done, Feed returns nothing.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.partial = append(d.partial, chunk...)

	var events []Event
	for !d.done {
		i := bytes.IndexByte(d.partial, '\n')
		if i < 0 {
			break
		}
		line := string(d.partial[:i])
		d.partial = d.partial[i+1:]
		if ev, ok := d.line(line); ok {
			events = append(events, ev)
		}
	}
	if d.done {
		d.partial = nil
	}
	return events
}

// Flush processes an unterminated last line, if any.
func (d *Decoder) Flush() []Event {
	if d.done || len(d.partial) == 0 {
		d.partial = nil
		return nil
	}
	line := string(d.partial)
	d.partial = nil
	if ev, ok := d.line(line); ok {
		return []Event{ev}
	}
	return nil
}

func (d *Decoder) line(line string) (Event, bool) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	content := line
	if strings.HasPrefix(content, dataField) {
		content = strings.TrimPrefix(content[len(dataField):], " ")
	}

	if strings.TrimSpace(content) == doneSentinel {
		d.done = true
		return Event{Kind: Done}, true
	}

	text, err := parseRecord(content)
	if err != nil {
		return Event{Kind: Malformed, Raw: line, Err: &MalformedError{Line: line, Err: err}}, true
	}
	if text == "" {
		return Event{}, false
	}
	return Event{Kind: Delta, Text: text}, true
}

var errNotObject = errors.New("record is not a JSON object")

func parseRecord(content string) (string, error) {
	if !strings.HasPrefix(strings.TrimSpace(content), "{") {
		return "", errNotObject
	}
	var envelope struct {
		Error *openai.APIError `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return "", err
	}
	if envelope.Error != nil {
		return "", fmt.Errorf("endpoint reported error: %w", envelope.Error)
	}

	var rec openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(content), &rec); err != nil {
		return "", err
	}
	if len(rec.Choices) == 0 {
		// usage trailers and filter preambles
		return "", nil
	}
	return rec.Choices[0].Delta.Content, nil
}

// ChunkSource yields raw chunks until io.EOF.
type ChunkSource interface {
	Next() ([]byte, error)
}

// Summary counts what Decode saw.
type Summary struct {
	Deltas    int
	Malformed int
	Done      bool
}

// Decode drives src through a fresh Decoder and calls fn for every event
// in order. It stops at the sentinel, at io.EOF, on a source error, when
// fn fails, or when ctx is cancelled. If src is an io.Closer it is closed
// on cancellation so a blocked Next returns.
func Decode(ctx context.Context, src ChunkSource, fn func(Event) error) (Summary, error) {
	var sum Summary
	if c, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	dec := NewDecoder()
	emit := func(events []Event) error {
		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch ev.Kind {
			case Delta:
				sum.Deltas++
			case Malformed:
				sum.Malformed++
			case Done:
				sum.Done = true
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
		return nil
	}

	for !dec.Done() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		chunk, err := src.Next()
		if len(chunk) > 0 {
			if emitErr := emit(dec.Feed(chunk)); emitErr != nil {
				return sum, emitErr
			}
		}
		if errors.Is(err, io.EOF) {
			return sum, emit(dec.Flush())
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, ctxErr
			}
			return sum, fmt.Errorf("read stream: %w", err)
		}
	}
	return sum, nil
}
