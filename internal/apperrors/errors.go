// Package apperrors defines the error kinds the service layer returns so
// handlers and the dispatcher can tell retriable, user-caused, and
// configuration failures apart.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("access denied")
)

// ValidationError reports bad caller input. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigurationError means a platform's client credentials are missing
// from the deployment. Every flow for that platform fails until fixed.
type ConfigurationError struct {
	Platform string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("platform %q is not configured", e.Platform)
}

// StateMismatchError rejects an authorization callback whose state token
// is invalid, expired, or bound to a different user.
type StateMismatchError struct {
	Reason string
}

func (e *StateMismatchError) Error() string {
	return "state mismatch: " + e.Reason
}

// CryptoError wraps a vault seal/open failure. Fatal for the single
// credential involved, not for the process.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// TokenExchangeError covers a failed code-for-token exchange against the
// provider, distinct from an identity fetch failure so callers can render
// a specific error state.
type TokenExchangeError struct {
	Platform string
	Err      error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("%s token exchange failed: %v", e.Platform, e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// IdentityFetchError covers a failed remote-identity lookup after a
// successful token exchange.
type IdentityFetchError struct {
	Platform string
	Err      error
}

func (e *IdentityFetchError) Error() string {
	return fmt.Sprintf("%s identity fetch failed: %v", e.Platform, e.Err)
}

func (e *IdentityFetchError) Unwrap() error {
	return e.Err
}

// PlatformRejectedError carries the provider's raw error payload from a
// non-2xx publish response for diagnostics.
type PlatformRejectedError struct {
	Platform   string
	StatusCode int
	Payload    string
}

func (e *PlatformRejectedError) Error() string {
	return fmt.Sprintf("%s rejected publish (status %d): %s", e.Platform, e.StatusCode, e.Payload)
}

// UnsupportedPlatformError means no adapter is registered for the
// platform tag. A configuration-time bug that should surface loudly.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("no adapter registered for platform %q", e.Platform)
}
