package main

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError covers user-correctable input problems (missing fields,
// bad email shape, short password).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError means a username or email is already taken.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// AuthenticationError is deliberately non-specific: it never distinguishes
// an unknown username from a wrong password.
type AuthenticationError struct{}

func (e *AuthenticationError) Error() string { return "Invalid username or password." }

// AuthorizationError marks a request that reached a protected surface
// without a live session.
type AuthorizationError struct{}

func (e *AuthorizationError) Error() string { return "Not logged in" }

// StorageError wraps a database failure. Detail stays server-side; clients
// get a generic message unless dev mode is on.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// httpStatusFor maps the error taxonomy onto response codes.
func httpStatusFor(err error) int {
	var ve *ValidationError
	var ce *ConflictError
	var ae *AuthenticationError
	var ze *AuthorizationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ae):
		return http.StatusUnauthorized
	case errors.As(err, &ze):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
