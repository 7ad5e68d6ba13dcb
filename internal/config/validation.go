package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration for problems that would make the
// authorization flow fail at runtime. Returns nil when the config is valid.
func (c PanelConfig) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.OAuth.ClientID) == "" {
		errs.Add("oauth.clientId", "is required")
	}
	if strings.TrimSpace(c.OAuth.AuthBaseURL) == "" {
		errs.Add("oauth.authBaseUrl", "is required")
	} else if !validHTTPURL(c.OAuth.AuthBaseURL) {
		errs.Add("oauth.authBaseUrl", "must be an http(s) URL")
	}
	if strings.TrimSpace(c.OAuth.RedirectURI) == "" {
		errs.Add("oauth.redirectUri", "is required")
	} else if !validHTTPURL(c.OAuth.RedirectURI) {
		errs.Add("oauth.redirectUri", "must be an http(s) URL")
	}
	if c.OAuth.TokenExchangeURL != "" && !validHTTPURL(c.OAuth.TokenExchangeURL) {
		errs.Add("oauth.tokenExchangeUrl", "must be an http(s) URL")
	}

	switch c.OAuth.Scope {
	case "team", "project":
	default:
		errs.Add("oauth.scope", "must be one of: team, project")
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs.Add("logLevel", "must be one of: debug, info, warn, error")
	}

	if c.Deploy.Retry.MaxAttempts < 1 {
		errs.Add("deploy.retry.maxAttempts", "must be at least 1")
	}
	if c.Deploy.Retry.BaseDelayMs < 0 {
		errs.Add("deploy.retry.baseDelayMs", "must not be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
