package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// HTTPError is an error with an HTTP status code.
type HTTPError struct {
	Status  int
	Message string
}

// NewHTTPError creates an HTTPError, defaulting the message to the status text.
func NewHTTPError(status int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HTTPError{Status: status, Message: message}
}

func (e *HTTPError) Error() string   { return e.Message }
func (e *HTTPError) StatusCode() int { return e.Status }

// PanicError is propagated when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap exposes a panic value that was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// StatusOf maps an error to the status code a final handler should send.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 600 {
			return code
		}
	}
	return http.StatusInternalServerError
}
