package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ClientOptions tunes the OpenAI transport.
type ClientOptions struct {
	BaseURL string
	// Timeout bounds the wait for response headers. Zero means no limit;
	// streamed bodies are never cut by it.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIClient implements Client against the OpenAI chat completions API
// or any compatible endpoint.
type OpenAIClient struct {
	client     *openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	orgID      string
}

// NewOpenAIClient creates a client authenticated with apiKey and orgID.
func NewOpenAIClient(apiKey, orgID string, opts ClientOptions) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	config.OrgID = orgID
	if opts.BaseURL != "" {
		config.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: opts.Timeout,
			},
		}
	}
	config.HTTPClient = httpClient

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(config),
		httpClient: httpClient,
		baseURL:    config.BaseURL,
		apiKey:     apiKey,
		orgID:      orgID,
	}
}

// Send performs one chat completion request.
func (c *OpenAIClient) Send(ctx context.Context, req *ChatRequest) (*CompletionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}

	if !req.Stream {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, wrapTransportError(err)
		}
		return &CompletionResult{Completion: fromOpenAIResponse(&resp)}, nil
	}

	chatReq.Stream = true
	stream, err := c.openStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	return &CompletionResult{Stream: stream}, nil
}

// openStream posts the request and hands back the raw event-stream body.
// go-openai's own stream reader decodes the records itself, so the
// request is issued directly to keep framing in internal/stream.
func (c *OpenAIClient) openStream(ctx context.Context, chatReq openai.ChatCompletionRequest) (ChunkStream, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.orgID != "" {
		httpReq.Header.Set("OpenAI-Organization", c.orgID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, newHTTPError(resp.StatusCode, data)
	}

	return NewReaderStream(resp.Body, 0), nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func fromOpenAIResponse(resp *openai.ChatCompletionResponse) *Completion {
	c := &Completion{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, choice := range resp.Choices {
		c.Choices = append(c.Choices, Choice{
			Index:        choice.Index,
			Content:      choice.Message.Content,
			FinishReason: string(choice.FinishReason),
		})
	}
	return c
}

// wrapTransportError keeps err intact and lifts the HTTP status, if any.
func wrapTransportError(err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &TransportError{StatusCode: status, Err: err}
}

func newHTTPError(status int, body []byte) error {
	var errResp openai.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
		errResp.Error.HTTPStatusCode = status
		return &TransportError{StatusCode: status, Err: errResp.Error}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "(no body)"
	}
	return &TransportError{
		StatusCode: status,
		Err:        fmt.Errorf("%d %s: %s", status, http.StatusText(status), msg),
	}
}
