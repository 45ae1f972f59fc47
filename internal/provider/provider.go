package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Client is the narrow capability the command layer depends on: send an
// ordered list of messages to a model and get either a complete answer or
// a lazy stream of raw transport chunks.
type Client interface {
	Send(ctx context.Context, req *ChatRequest) (*CompletionResult, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req *ChatRequest) (*CompletionResult, error)

func (f ClientFunc) Send(ctx context.Context, req *ChatRequest) (*CompletionResult, error) {
	return f(ctx, req)
}

// ErrInvalidRequest is returned before any network call when a request is
// missing its model or messages.
var ErrInvalidRequest = errors.New("invalid chat request")

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a conversation message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to create a chat completion
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// Validate checks the request invariants.
func (r *ChatRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if r.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	return nil
}

// Choice is one candidate answer of a completion.
type Choice struct {
	Index        int    `json:"index"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Usage tracks token usage
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TotalTokens returns the total token count
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// Completion is a complete, non-streamed response.
type Completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// FirstContent returns the content of the first choice. ok is false when
// the response carried no choices.
func (c *Completion) FirstContent() (content string, ok bool) {
	if c == nil || len(c.Choices) == 0 {
		return "", false
	}
	return c.Choices[0].Content, true
}

// ChunkStream is a lazy sequence of raw transport chunks. Next returns
// io.EOF once the transport is exhausted. Chunks are not aligned to lines.
type ChunkStream interface {
	Next() ([]byte, error)
	Close() error
}

// CompletionResult holds exactly one of Completion or Stream.
type CompletionResult struct {
	Completion *Completion
	Stream     ChunkStream
}

// Streaming reports whether the result is a chunk stream.
func (r *CompletionResult) Streaming() bool {
	return r != nil && r.Stream != nil
}

// Close releases the stream, if any.
func (r *CompletionResult) Close() error {
	if r == nil || r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

const defaultChunkSize = 4096

// readerStream turns an io.ReadCloser into a ChunkStream, one Read per chunk.
type readerStream struct {
	rc  io.ReadCloser
	buf []byte
}

// NewReaderStream wraps rc. size <= 0 picks a 4 KiB read buffer.
func NewReaderStream(rc io.ReadCloser, size int) ChunkStream {
	if size <= 0 {
		size = defaultChunkSize
	}
	return &readerStream{rc: rc, buf: make([]byte, size)}
}

func (s *readerStream) Next() ([]byte, error) {
	for {
		n, err := s.rc.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			// A trailing io.EOF is reported by the next call.
			return chunk, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *readerStream) Close() error {
	return s.rc.Close()
}
