// Package gwerror implements the ambient error-handling contract: a small
// typed error that optionally carries an HTTP status code, wrapping an
// underlying cause with %w so callers up the stack can still use
// errors.Is/errors.As. This mirrors the role skipper's tryCatch and its
// FilterContext error-setting play for the proxy (proxy/proxy.go,
// proxy/errors.go): failures inside filters never panic across package
// boundaries, they return a typed error the outer handler maps to a status.
package gwerror

import (
	"errors"
	"fmt"
)

// StatusError is an error that knows which HTTP status it should produce,
// used by terminal routing filters and the rate limiter (§4.9, §4.10) to
// signal 502/429/403 without the routing handler needing to know the
// specifics of each failure mode.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus wraps err with an HTTP status code.
func WithStatus(status int, err error) *StatusError {
	return &StatusError{Status: status, Err: err}
}

// Timeout is returned by the HTTP terminal routing filter when the upstream
// read deadline elapses, per §4.9: "the core only signals Timeout", leaving
// the outer error handler to decide the exact status (504, or a 408-like
// alternative).
type Timeout struct {
	Err error
}

func (e *Timeout) Error() string { return fmt.Sprintf("upstream timeout: %v", e.Err) }
func (e *Timeout) Unwrap() error { return e.Err }

// StatusOf extracts the HTTP status a caller should respond with, defaulting
// to 502 Bad Gateway for an unrecognized error and 504 for a Timeout.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	var to *Timeout
	if errors.As(err, &to) {
		return 504
	}
	return 502
}
