// Package errs provides the error types handlers use to report failures to
// clients of the lab service.
package errs

import (
	"errors"
	"net/http"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is an error whose message is safe to return to the client with
// the attached status.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. Handlers use
// this for expected failures such as a missing report or a busy job slot.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap returns the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns the Trusted error in the chain or nil.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}

// NotFound wraps err as a trusted 404.
func NotFound(err error) error {
	return NewTrusted(err, http.StatusNotFound)
}

// Conflict wraps err as a trusted 409.
func Conflict(err error) error {
	return NewTrusted(err, http.StatusConflict)
}

// BadRequest wraps err as a trusted 400.
func BadRequest(err error) error {
	return NewTrusted(err, http.StatusBadRequest)
}
