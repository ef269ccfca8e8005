package domain

import (
	"errors"
	"time"
)

// ErrorKind classifies failures so callers can branch without matching messages.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindAuth                ErrorKind = "auth"
	KindConflict            ErrorKind = "conflict"
	KindUpstream            ErrorKind = "upstream"
	KindInsufficientHistory ErrorKind = "insufficient_history"
	KindRateLimited         ErrorKind = "rate_limited"
)

// Auth failure codes.
const (
	CodeMissingToken       = "missing_token"
	CodeTokenExpired       = "token_expired"
	CodeTokenMalformed     = "token_malformed"
	CodeInvalidCredentials = "invalid_credentials"
)

// Error is the typed error returned across component boundaries.
// Message is safe to show to clients; Err is kept for logs only.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and code, so the
// package-level sentinels below work with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

var (
	ErrMissingToken       = &Error{Kind: KindAuth, Code: CodeMissingToken, Message: "authorization token is required"}
	ErrTokenExpired       = &Error{Kind: KindAuth, Code: CodeTokenExpired, Message: "token has expired"}
	ErrTokenMalformed     = &Error{Kind: KindAuth, Code: CodeTokenMalformed, Message: "token is invalid"}
	ErrInvalidCredentials = &Error{Kind: KindAuth, Code: CodeInvalidCredentials, Message: "invalid username or password"}
	ErrUsernameTaken      = &Error{Kind: KindConflict, Code: "username_taken", Message: "username already exists"}
)

// NewError builds an *Error wrapping cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// ValidationError reports missing or malformed input.
func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NotFoundError reports that no data exists for the request.
func NotFoundError(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: cause}
}

// UpstreamError reports a provider or store failure.
func UpstreamError(message string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
// Untyped errors are treated as upstream failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// AsError returns the first *Error in err's chain, or an upstream error wrapping err.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return UpstreamError("internal error", err)
}
