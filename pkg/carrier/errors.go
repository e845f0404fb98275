package carrier

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a carrier failure. Every failure has exactly one Kind.
type Kind string

const (
	// KindNetwork covers timeouts, transport failures, 5xx and throttling.
	KindNetwork Kind = "network"
	// KindAuth covers 401 and 403 responses.
	KindAuth Kind = "auth"
	// KindValidation covers local validation and 400-class rejections.
	KindValidation Kind = "validation"
	// KindNotFound covers 404 responses, usually a wrong endpoint or API version.
	KindNotFound Kind = "not_found"
)

// Error represents a classified error from the carrier.
type Error struct {
	Carrier     string
	Capability  Capability
	Kind        Kind
	Code        string
	Message     string
	StatusCode  int
	Cause       error
	Diagnostics *Diagnostics
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := e.Carrier
	if e.Capability != "" {
		prefix = fmt.Sprintf("%s %s", e.Carrier, e.Capability)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s error (%s): %s: %v", prefix, e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s error (%s): %s", prefix, e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new Error.
func NewError(carrier string, kind Kind, code, message string) *Error {
	return &Error{
		Carrier: carrier,
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithCapability records which capability failed.
func (e *Error) WithCapability(c Capability) *Error {
	e.Capability = c
	return e
}

// WithDiagnostics attaches a warehouse-name diagnostic report.
func (e *Error) WithDiagnostics(d *Diagnostics) *Error {
	e.Diagnostics = d
	return e
}

// Sentinel errors, one per Kind. Compare with errors.Is.
var (
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}

	// ErrNotConfigured is the cause recorded when no credentials are set.
	ErrNotConfigured = errors.New("carrier not configured")
)

// KindFromStatus maps an HTTP status code to a Kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return KindNetwork
	case status >= 400:
		return KindValidation
	}
	return KindNetwork
}

// KindOf returns the Kind of err, or "" if err is not a carrier error.
func KindOf(err error) Kind {
	var carrierErr *Error
	if errors.As(err, &carrierErr) {
		return carrierErr.Kind
	}
	return ""
}

// AsError extracts the *Error from err.
func AsError(err error) (*Error, bool) {
	var carrierErr *Error
	ok := errors.As(err, &carrierErr)
	return carrierErr, ok
}

// IsNetwork reports whether err is a network-class failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
