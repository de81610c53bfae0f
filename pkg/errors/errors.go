package errors

import (
	"errors"
	"fmt"
)

// Domain errors - Sentinel errors for use with errors.Is()
var (
	ErrNoCredential        = errors.New("no credential")
	ErrMalformedToken      = errors.New("malformed token")
	ErrDecode              = errors.New("token decode error")
	ErrNoRoleClaim         = errors.New("token has no role claim")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrChannelConnect      = errors.New("push channel connect error")
	ErrUpstreamAuthFailure = errors.New("upstream authorization failure")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrBadRequest          = errors.New("bad request")
	ErrUnavailable         = errors.New("service unavailable")
	ErrInternal            = errors.New("internal error")
)

// Custom error type with context
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructors
func NoCredential(msg string) *AppError {
	return &AppError{Code: "NO_CREDENTIAL", Message: msg, Err: ErrNoCredential}
}

func MalformedToken(msg string) *AppError {
	return &AppError{Code: "MALFORMED_TOKEN", Message: msg, Err: ErrMalformedToken}
}

// Decode wraps cause so both errors.Is(err, ErrDecode) and the underlying
// base64/utf8/json error remain reachable.
func Decode(msg string, cause error) *AppError {
	return &AppError{Code: "DECODE_ERROR", Message: msg, Err: fmt.Errorf("%w: %w", ErrDecode, cause)}
}

func NoRoleClaim() *AppError {
	return &AppError{Code: "NO_ROLE_CLAIM", Message: "token payload lacks a role claim", Err: ErrNoRoleClaim}
}

func AuthorizationDenied(msg string) *AppError {
	return &AppError{Code: "AUTHORIZATION_DENIED", Message: msg, Err: ErrAuthorizationDenied}
}

func ChannelConnect(msg string, cause error) *AppError {
	if cause == nil {
		return &AppError{Code: "CHANNEL_CONNECT_ERROR", Message: msg, Err: ErrChannelConnect}
	}
	return &AppError{Code: "CHANNEL_CONNECT_ERROR", Message: msg, Err: fmt.Errorf("%w: %w", ErrChannelConnect, cause)}
}

func UpstreamAuthFailure(status int) *AppError {
	return &AppError{Code: "UPSTREAM_AUTH_FAILURE", Message: fmt.Sprintf("upstream responded %d", status), Err: ErrUpstreamAuthFailure}
}

func InvalidCredentials() *AppError {
	return &AppError{Code: "INVALID_CREDENTIALS", Message: "invalid user name or password", Err: ErrInvalidCredentials}
}

func BadRequest(msg string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: msg, Err: ErrBadRequest}
}

func Unavailable(msg string, err error) *AppError {
	if err == nil {
		return &AppError{Code: "UNAVAILABLE", Message: msg, Err: ErrUnavailable}
	}
	return &AppError{Code: "UNAVAILABLE", Message: msg, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
}

func Internal(msg string, err error) *AppError {
	if err == nil {
		return &AppError{Code: "INTERNAL_ERROR", Message: msg, Err: ErrInternal}
	}
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Err: fmt.Errorf("%w: %w", ErrInternal, err)}
}

// IsAbsorbed reports whether err belongs to the class of failures that are
// turned into a plain deny and never shown to the user.
func IsAbsorbed(err error) bool {
	return errors.Is(err, ErrNoCredential) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrNoRoleClaim) ||
		errors.Is(err, ErrAuthorizationDenied)
}
