package oauth

import (
	"errors"
	"fmt"
)

// ErrStateMismatch is returned when the callback's state parameter does not
// match the state stored at authorization time. This is the CSRF defense
// tripping; the flow must not proceed.
var ErrStateMismatch = errors.New("oauth state mismatch")

// ErrServerExchangeRequired is returned when the direct (client-side)
// token exchange fails in a way that indicates the authorization server
// requires a server-side exchange. The remediation is to configure a
// delegated token exchange endpoint, not to retry.
var ErrServerExchangeRequired = errors.New(
	"direct token exchange rejected: configure a server-side token exchange endpoint (tokenExchangeUrl)")

// AuthorizationDeniedError is returned when the authorization server
// reported an error on the callback. It is terminal; the user declined or
// the server refused, and no retry will change that.
type AuthorizationDeniedError struct {
	// Code is the error parameter from the callback (e.g. "access_denied").
	Code string

	// Description is the human-readable error_description, if present.
	Description string
}

// Error implements the error interface.
func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Description, e.Code)
	}
	return fmt.Sprintf("authorization denied: %s", e.Code)
}

// ServerConfigError indicates the delegated exchange endpoint is
// misconfigured. The message carries actionable remediation text rather
// than a raw transport error.
type ServerConfigError struct {
	// Remediation tells the operator how to fix the deployment.
	Remediation string
}

// Error implements the error interface.
func (e *ServerConfigError) Error() string {
	return "token exchange server misconfigured: " + e.Remediation
}
