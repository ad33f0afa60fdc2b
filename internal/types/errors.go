package types

import (
	"errors"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("item already exists or conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUpstream           = errors.New("upstream failure")
	ErrNotFound           = errors.New("requested item not found")
)

// ApiError is a failure that maps directly onto the response envelope.
// Message is safe to show to clients; the cause is for logs only.
type ApiError struct {
	StatusCode int
	Message    string
	Errors     []string
	kind       error
	cause      error
}

func (e *ApiError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *ApiError) Unwrap() []error {
	errs := []error{e.kind}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Cause returns the wrapped internal error, if any.
func (e *ApiError) Cause() error { return e.cause }

func NewValidationError(message string, details ...string) *ApiError {
	return &ApiError{StatusCode: http.StatusBadRequest, Message: message, Errors: details, kind: ErrValidation}
}

func NewConflictError(message string) *ApiError {
	return &ApiError{StatusCode: http.StatusConflict, Message: message, kind: ErrConflict}
}

func NewInvalidCredentialsError(message string) *ApiError {
	return &ApiError{StatusCode: http.StatusUnauthorized, Message: message, kind: ErrInvalidCredentials}
}

func NewInvalidTokenError(message string, cause error) *ApiError {
	return &ApiError{StatusCode: http.StatusUnauthorized, Message: message, kind: ErrInvalidToken, cause: cause}
}

func NewUpstreamError(message string, cause error) *ApiError {
	return &ApiError{StatusCode: http.StatusInternalServerError, Message: message, kind: ErrUpstream, cause: cause}
}
