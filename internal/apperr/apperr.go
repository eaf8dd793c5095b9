// Package apperr models the error taxonomy of the core as concrete Go
// error types, so callers can branch on failure kind with errors.As instead
// of string matching.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError: request rejected at the boundary. Surfaced to the caller;
// no side effects.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError: a referenced entity id is absent.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// TransientUpstreamError: exchange or webhook transport failure, timeout, or
// non-2xx response. Recoverable on the next scheduled tick.
type TransientUpstreamError struct {
	Op  string
	Err error
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("transient upstream error during %s: %v", e.Op, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

// StoreError: persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InternalError: catch-all, always logged with context, never crashes the
// scheduler.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// HTTPStatus maps an error kind to the HTTP status code the collaborator
// inbound surface should return for it. Wrapped errors are unwrapped,
// so a NotFoundError inside a store-layer wrapper still maps to 404.
func HTTPStatus(err error) int {
	var ve *ValidationError
	var nfe *NotFoundError
	switch {
	case errors.As(err, &ve):
		return 400
	case errors.As(err, &nfe):
		return 404
	default:
		return 500
	}
}

// Code maps an error to the machine-readable error_code the inbound surface
// returns alongside the message.
func Code(err error) string {
	var (
		ve  *ValidationError
		nfe *NotFoundError
		ue  *TransientUpstreamError
		se  *StoreError
	)
	switch {
	case errors.As(err, &ve):
		return "VALIDATION_ERROR"
	case errors.As(err, &nfe):
		return "NOT_FOUND"
	case errors.As(err, &ue):
		return "UPSTREAM_ERROR"
	case errors.As(err, &se):
		return "STORE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
