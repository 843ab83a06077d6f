// Package apierrors defines the typed error taxonomy shared by every
// component. A Kind maps deterministically to an HTTP status code so
// handlers never have to guess how to report a failure to a caller.
package apierrors

import (
	"errors"
	"net/http"
)

// Kind classifies an AppError for the purpose of HTTP status mapping and
// client-facing messaging. Internal detail never crosses this boundary.
type Kind string

const (
	Unauthorized  Kind = "unauthorized"
	Forbidden     Kind = "forbidden"
	NotFound      Kind = "not_found"
	Conflict      Kind = "conflict"
	QuotaExceeded Kind = "quota_exceeded"
	RateLimited   Kind = "rate_limited"
	Internal      Kind = "internal"
	Upstream      Kind = "upstream"
	Unavailable   Kind = "unavailable"
)

var statusByKind = map[Kind]int{
	Unauthorized:  http.StatusUnauthorized,
	Forbidden:     http.StatusForbidden,
	NotFound:      http.StatusNotFound,
	Conflict:      http.StatusConflict,
	QuotaExceeded: http.StatusTooManyRequests,
	RateLimited:   http.StatusTooManyRequests,
	Internal:      http.StatusInternalServerError,
	Upstream:      http.StatusBadGateway,
	Unavailable:   http.StatusServiceUnavailable,
}

// AppError is the canonical error type returned from every internal
// package. Details carries debug-only context and is never serialized
// to a client.
type AppError struct {
	Kind    Kind
	Message string
	Details string
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// StatusCode returns the HTTP status code for this error's Kind.
func (e *AppError) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Response is the wire-safe representation of an AppError.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ToResponse renders the client-facing body for this error. Details is
// deliberately omitted.
func (e *AppError) ToResponse() Response {
	return Response{
		Error:   string(e.Kind),
		Message: e.Message,
	}
}

func new_(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, cause: cause}
}

func NewUnauthorized(message string) *AppError  { return new_(Unauthorized, message, nil) }
func NewForbidden(message string) *AppError     { return new_(Forbidden, message, nil) }
func NewNotFound(message string) *AppError      { return new_(NotFound, message, nil) }
func NewConflict(message string) *AppError      { return new_(Conflict, message, nil) }
func NewQuotaExceeded(message string) *AppError { return new_(QuotaExceeded, message, nil) }
func NewRateLimited(message string) *AppError   { return new_(RateLimited, message, nil) }
func NewUnavailable(message string) *AppError   { return new_(Unavailable, message, nil) }

func NewUpstream(message string, cause error) *AppError {
	return new_(Upstream, message, cause)
}

func NewInternal(message string, cause error) *AppError {
	return new_(Internal, message, cause)
}

// As extracts an *AppError from err, synthesizing an Internal one if err
// is not already typed. Handlers use this so every error path, including
// ones from third-party libraries, yields a well-formed response.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return NewInternal("internal error", err)
}

// Is reports whether err (or one it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	ae := As(err)
	return ae != nil && ae.Kind == kind
}
