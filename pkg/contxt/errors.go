package contxt

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// Configuration errors
// ============================================================================

// ErrUnknownSessionType is wrapped by the ConfigError returned from New when
// Options.SessionType is not one of the supported strategies.
var ErrUnknownSessionType = errors.New("unknown session type")

// ConfigError reports audience or environment configuration that cannot be
// resolved. It is returned from New before any network activity.
type ConfigError struct {
	Message string

	// Audiences lists the audience keys the problem applies to, if any.
	Audiences []string

	Err error
}

func (e *ConfigError) Error() string {
	msg := "contxt: " + e.Message
	if len(e.Audiences) > 0 {
		msg += " (audiences: " + strings.Join(e.Audiences, ", ") + ")"
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthConfigError reports a session strategy constructed without a required
// setting, such as a client id.
type AuthConfigError struct {
	SessionType string
	Field       string
}

func (e *AuthConfigError) Error() string {
	return fmt.Sprintf("contxt: %s session requires %s", e.SessionType, e.Field)
}

// ============================================================================
// Authentication errors
// ============================================================================

// AuthParseError reports a login callback that could not be turned into a
// session: a malformed fragment, a provider error, or a state mismatch.
type AuthParseError struct {
	Reason string
	Err    error
}

func (e *AuthParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("contxt: unable to parse authentication callback: %s: %v", e.Reason, e.Err)
	}
	return "contxt: unable to parse authentication callback: " + e.Reason
}

func (e *AuthParseError) Unwrap() error { return e.Err }

// AuthExchangeError reports a failed call to the identity provider or the
// token broker.
type AuthExchangeError struct {
	// Op names the failed step, e.g. "token exchange" or "password grant".
	Op string

	// StatusCode is the HTTP status returned, or 0 for transport failures.
	StatusCode int

	// Code and Description are the OAuth error fields when the server sent them.
	Code        string
	Description string

	// Message overrides the generated error text.
	Message string

	Err error
}

func (e *AuthExchangeError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	msg := "contxt: " + e.Op + " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// MFARequiredError is returned by CLIAuth.LogIn when the identity provider
// demands a second factor. Pass it to CLIAuth.LogInWithMFA with a one-time
// password to finish logging in.
type MFARequiredError struct {
	MFAToken    string
	Description string
}

func (e *MFARequiredError) Error() string {
	if e.Description != "" {
		return "contxt: multifactor authentication required: " + e.Description
	}
	return "contxt: multifactor authentication required"
}

// TokenKind names the token a NoTokenError is about.
type TokenKind string

const (
	TokenKindAccess TokenKind = "access"
	TokenKindAPI    TokenKind = "api"
)

// NoTokenError is returned when a token is requested from a session that
// does not hold one.
type NoTokenError struct {
	Kind TokenKind
}

func (e *NoTokenError) Error() string {
	return fmt.Sprintf("contxt: no %s token found", e.Kind)
}

// ============================================================================
// Request errors
// ============================================================================

// ValidationError reports an argument rejected before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("contxt: invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("contxt: %s is required", e.Field)
}

// APIError is returned for any non-2xx response from a Contxt API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("contxt: api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("contxt: api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *APIError) IsNotFound() bool     { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsForbidden() bool    { return e.StatusCode == http.StatusForbidden }

// IsNotFound reports whether err is an APIError for a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}
