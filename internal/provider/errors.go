package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// TransportError wraps a network, authentication or HTTP failure from the
// chat endpoint. The original error is kept unmodified.
type TransportError struct {
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorType labels a transport failure for reporting
type ErrorType string

const (
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeAPIError        ErrorType = "api_error"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeAuth            ErrorType = "auth_error"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeNetwork         ErrorType = "network"
)

// ClassifiedError wraps a transport error with classification.
// Classification only informs what the user is told; callers never retry.
type ClassifiedError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Original   error
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Original
}

var overflowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`maximum context length`),
	regexp.MustCompile(`context_length_exceeded`),
	regexp.MustCompile(`max_tokens.*exceeds.*limit`),
	regexp.MustCompile(`Request too large`),
	regexp.MustCompile(`Please reduce the length`),
	regexp.MustCompile(`(?i)context.*(?:too long|overflow|exceeded|limit)`),
}

// IsContextOverflow checks if an error message indicates context overflow
func IsContextOverflow(msg string) bool {
	for _, pat := range overflowPatterns {
		if pat.MatchString(msg) {
			return true
		}
	}
	return false
}

// ClassifyError classifies a transport error
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	statusCode := 0
	var te *TransportError
	if errors.As(err, &te) {
		statusCode = te.StatusCode
	}
	msg := err.Error()
	lowerMsg := strings.ToLower(msg)

	switch {
	case IsContextOverflow(msg):
		return &ClassifiedError{
			Type:       ErrorTypeContextOverflow,
			Message:    "Selection is too large for the model's context window.",
			StatusCode: statusCode,
			Original:   err,
		}
	case statusCode == 429 || strings.Contains(lowerMsg, "rate_limit") ||
		strings.Contains(lowerMsg, "quota"):
		return &ClassifiedError{
			Type:       ErrorTypeRateLimit,
			Message:    "Rate limited by the chat endpoint.",
			StatusCode: statusCode,
			Original:   err,
		}
	case statusCode == 401 || statusCode == 403:
		return &ClassifiedError{
			Type:       ErrorTypeAuth,
			Message:    fmt.Sprintf("Authentication error (%d): %s", statusCode, msg),
			StatusCode: statusCode,
			Original:   err,
		}
	case statusCode == 404:
		return &ClassifiedError{
			Type:       ErrorTypeNotFound,
			Message:    fmt.Sprintf("Model or endpoint not found: %s", msg),
			StatusCode: statusCode,
			Original:   err,
		}
	case statusCode >= 500:
		return &ClassifiedError{
			Type:       ErrorTypeAPIError,
			Message:    fmt.Sprintf("Chat endpoint server error (%d): %s", statusCode, msg),
			StatusCode: statusCode,
			Original:   err,
		}
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return &ClassifiedError{
			Type:     ErrorTypeTimeout,
			Message:  "The request timed out.",
			Original: err,
		}
	case statusCode == 0 && isNetwork(err):
		return &ClassifiedError{
			Type:     ErrorTypeNetwork,
			Message:  fmt.Sprintf("Could not reach the chat endpoint: %s", msg),
			Original: err,
		}
	}

	return &ClassifiedError{
		Type:       ErrorTypeAPIError,
		Message:    msg,
		StatusCode: statusCode,
		Original:   err,
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNetwork(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) || errors.As(err, &dnsErr)
}

// UserFriendlyError wraps errors with helpful user-facing messages
type UserFriendlyError struct {
	Title            string // Short title for the error
	Message          string // Detailed user-friendly message
	Suggestion       string // What the user should do
	TechnicalDetails string // Technical error details (for debugging)
	Original         error  // Original error
}

func (e *UserFriendlyError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Title)
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Suggestion != "" {
		sb.WriteString("\n\nSuggestion: ")
		sb.WriteString(e.Suggestion)
	}
	if e.TechnicalDetails != "" {
		sb.WriteString("\n\nTechnical details: ")
		sb.WriteString(e.TechnicalDetails)
	}
	return sb.String()
}

func (e *UserFriendlyError) Unwrap() error {
	return e.Original
}

// MakeUserFriendly converts a transport error into a user-facing message
func MakeUserFriendly(err error) error {
	if err == nil {
		return nil
	}

	var uf *UserFriendlyError
	if errors.As(err, &uf) {
		return err
	}

	ce := ClassifyError(err)
	switch ce.Type {
	case ErrorTypeContextOverflow:
		return &UserFriendlyError{
			Title:            "Selection Too Large",
			Message:          "The selected code does not fit in the model's context window.",
			Suggestion:       "Select a smaller region, or configure a model with a larger context window.",
			TechnicalDetails: ce.Message,
			Original:         err,
		}
	case ErrorTypeAuth:
		return &UserFriendlyError{
			Title:   "Authentication Failed",
			Message: "The chat endpoint rejected the API key or organization ID.",
			Suggestion: `Please check your credentials:
  1. Run 'refactorai auth login' to enter new values
  2. Or set OPENAI_API_KEY and OPENAI_ORG_ID
  3. Verify the key belongs to the configured organization`,
			TechnicalDetails: ce.Message,
			Original:         err,
		}
	case ErrorTypeRateLimit:
		return &UserFriendlyError{
			Title:            "Rate Limit Exceeded",
			Message:          "The chat endpoint is throttling requests.",
			Suggestion:       "Wait a moment and run the command again, or check your plan's quota.",
			TechnicalDetails: ce.Message,
			Original:         err,
		}
	case ErrorTypeNotFound:
		return &UserFriendlyError{
			Title:            "Model or Endpoint Not Found",
			Message:          "The configured model or base URL could not be found.",
			Suggestion:       "Check refactorWithAI.MODEL and refactorWithAI.baseURL in your settings.",
			TechnicalDetails: ce.Message,
			Original:         err,
		}
	case ErrorTypeTimeout, ErrorTypeNetwork:
		return &UserFriendlyError{
			Title:            "Connection Problem",
			Message:          "The chat endpoint could not be reached in time.",
			Suggestion:       "Check your network connection and the refactorWithAI.timeout setting.",
			TechnicalDetails: ce.Message,
			Original:         err,
		}
	default:
		return &UserFriendlyError{
			Title:            "API Error",
			Message:          "An error occurred while communicating with the chat endpoint.",
			TechnicalDetails: ce.Message,
			Original:         err,
		}
	}
}
