// Package providertest provides an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/Dhanuzh/refactorai/internal/provider"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("providertest: stream closed")

// DoneRecord is the end-of-stream sentinel record.
const DoneRecord = "data: [DONE]\n\n"

// DeltaRecord encodes text as one event-stream delta record.
func DeltaRecord(text string) string {
	payload := map[string]any{
		"choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"content": text}},
		},
	}
	data, _ := json.Marshal(payload)
	return "data: " + string(data) + "\n\n"
}

// Client records requests and answers from its fields.
type Client struct {
	mu       sync.Mutex
	requests []provider.ChatRequest

	Completion *provider.Completion // answer for non-streaming requests
	Chunks     []string             // raw chunks for streaming requests
	Hold       bool                 // keep streams open after the last chunk until closed
	Err        error                // returned by Send when set

	lastStream *Stream
}

func (c *Client) Send(ctx context.Context, req *provider.ChatRequest) (*provider.CompletionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *req
	copied.Messages = append([]provider.Message(nil), req.Messages...)
	c.requests = append(c.requests, copied)

	if c.Err != nil {
		return nil, c.Err
	}
	if !req.Stream {
		completion := c.Completion
		if completion == nil {
			completion = &provider.Completion{}
		}
		return &provider.CompletionResult{Completion: completion}, nil
	}

	s := NewStream(c.Chunks...)
	if c.Hold {
		s.hold = make(chan struct{})
	}
	c.lastStream = s
	return &provider.CompletionResult{Stream: s}, nil
}

// Requests returns a copy of every request seen so far.
func (c *Client) Requests() []provider.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.ChatRequest(nil), c.requests...)
}

// LastStream returns the stream handed out by the latest streaming Send.
func (c *Client) LastStream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStream
}

// Stream is a provider.ChunkStream over fixed chunks.
type Stream struct {
	mu     sync.Mutex
	chunks [][]byte
	closed bool
	hold   chan struct{}
}

// NewStream returns a stream yielding chunks in order, then io.EOF.
func NewStream(chunks ...string) *Stream {
	s := &Stream{}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *Stream) Next() ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		return chunk, nil
	}
	hold := s.hold
	s.mu.Unlock()

	if hold != nil {
		<-hold
		return nil, ErrStreamClosed
	}
	return nil, io.EOF
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		if s.hold != nil {
			close(s.hold)
		}
	}
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
