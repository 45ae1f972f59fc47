package provider

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportErrorMessage(t *testing.T) {
	base := errors.New("boom")

	withStatus := &TransportError{StatusCode: 500, Err: base}
	assert.Equal(t, "transport error (status 500): boom", withStatus.Error())
	assert.ErrorIs(t, withStatus, base)

	noStatus := &TransportError{Err: base}
	assert.Equal(t, "transport error: boom", noStatus.Error())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"rate limit", &TransportError{StatusCode: 429, Err: errors.New("slow down")}, ErrorTypeRateLimit},
		{"auth", &TransportError{StatusCode: 401, Err: errors.New("bad key")}, ErrorTypeAuth},
		{"forbidden", &TransportError{StatusCode: 403, Err: errors.New("nope")}, ErrorTypeAuth},
		{"not found", &TransportError{StatusCode: 404, Err: errors.New("no model")}, ErrorTypeNotFound},
		{"server", &TransportError{StatusCode: 503, Err: errors.New("down")}, ErrorTypeAPIError},
		{"overflow", &TransportError{StatusCode: 400, Err: errors.New("This model's maximum context length is 4097 tokens")}, ErrorTypeContextOverflow},
		{"deadline", &TransportError{Err: context.DeadlineExceeded}, ErrorTypeTimeout},
		{"network", &TransportError{Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, ErrorTypeNetwork},
		{"other", errors.New("weird"), ErrorTypeAPIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := ClassifyError(tt.err)
			assert.Equal(t, tt.want, ce.Type)
			assert.ErrorIs(t, ce, tt.err)
		})
	}

	assert.Nil(t, ClassifyError(nil))
}

func TestIsContextOverflow(t *testing.T) {
	tests := []struct {
		msg      string
		expected bool
	}{
		{"maximum context length exceeded", true},
		{"context_length_exceeded", true},
		{"Please reduce the length of the messages", true},
		{"normal error message", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsContextOverflow(tt.msg))
		})
	}
}

func TestMakeUserFriendly(t *testing.T) {
	err := MakeUserFriendly(&TransportError{StatusCode: 401, Err: errors.New("bad key")})

	var uf *UserFriendlyError
	if assert.ErrorAs(t, err, &uf) {
		assert.Equal(t, "Authentication Failed", uf.Title)
		assert.Contains(t, uf.Suggestion, "refactorai auth login")
	}

	var te *TransportError
	assert.ErrorAs(t, err, &te, "original error stays reachable")

	assert.Same(t, uf, MakeUserFriendly(uf).(*UserFriendlyError))
	assert.Nil(t, MakeUserFriendly(nil))
}
