package models

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError carries an HTTP-mappable error code through the
// orchestration layers so transport code can translate it once.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NotFound indicates a referenced entity is absent.
func NotFound(format string, args ...interface{}) *StatusError {
	return &StatusError{Code: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden indicates the operation is not permitted given the current
// state or identity.
func Forbidden(format string, args ...interface{}) *StatusError {
	return &StatusError{Code: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized indicates the caller is authenticated but lacks the
// required permission.
func Unauthorized(format string, args ...interface{}) *StatusError {
	return &StatusError{Code: http.StatusUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// BadRequest indicates malformed or disallowed input.
func BadRequest(format string, args ...interface{}) *StatusError {
	return &StatusError{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected collaborator failure.
func Internal(err error, format string, args ...interface{}) *StatusError {
	return &StatusError{Code: http.StatusInternalServerError, Message: fmt.Sprintf(format, args...), Err: err}
}

// StatusCode extracts the HTTP code from an error chain, defaulting to 500.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return http.StatusInternalServerError
}
