package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var validLogLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate validates the settings. Credentials are not checked here: a
// missing pair is resolved interactively by the CredentialProvider.
func (s Settings) Validate() error {
	var errors ValidationErrors

	if strings.TrimSpace(s.Model) == "" {
		errors = append(errors, ValidationError{
			Field:   KeyModel,
			Message: "model must not be empty",
		})
	}

	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   KeyBaseURL,
				Message: fmt.Sprintf("invalid base URL %q, expected http(s)://host[/path]", s.BaseURL),
			})
		}
	}

	if s.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   KeyTimeout,
			Message: "timeout must not be negative",
		})
	}

	if s.LogLevel != "" {
		valid := false
		for _, l := range validLogLevels {
			if strings.EqualFold(s.LogLevel, l) {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   KeyLogLevel,
				Message: fmt.Sprintf("unknown log level '%s', valid: %s", s.LogLevel, strings.Join(validLogLevels, ", ")),
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}
