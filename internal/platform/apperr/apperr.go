// Package apperr defines the error kinds shared by the RxCheck services and the
// HTTP status each kind maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation to the HTTP layer.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindNotFound      Kind = "not_found"
	KindUpstream      Kind = "upstream"
	KindConfiguration Kind = "configuration"
	KindPersistence   Kind = "persistence"
	KindInternal      Kind = "internal"
)

var kindStatus = map[Kind]int{
	KindValidation:    http.StatusBadRequest,
	KindAuth:          http.StatusUnauthorized,
	KindNotFound:      http.StatusNotFound,
	KindUpstream:      http.StatusBadGateway,
	KindConfiguration: http.StatusInternalServerError,
	KindPersistence:   http.StatusInternalServerError,
	KindInternal:      http.StatusInternalServerError,
}

// Error is a classified error. Msg is safe to show to the caller; Err carries
// the underlying cause and is only logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Overloaded marks upstream failures where the remote service reported
	// it was temporarily unavailable (HTTP 503 / 429).
	Overloaded bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, apperr.ErrNotFound) works for any
// not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// HTTPStatus returns the status code for the error kind.
func (e *Error) HTTPStatus() int {
	if e.Kind == KindUpstream && e.Overloaded {
		return http.StatusServiceUnavailable
	}
	if s, ok := kindStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrUpstream      = &Error{Kind: KindUpstream}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func Auth(msg string) error { return &Error{Kind: KindAuth, Msg: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

func Configuration(msg string) error { return &Error{Kind: KindConfiguration, Msg: msg} }

func Upstream(msg string, err error) error { return &Error{Kind: KindUpstream, Msg: msg, Err: err} }

// Overloaded builds an upstream error that maps to 503.
func Overloaded(msg string, err error) error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err, Overloaded: true}
}

func Persistence(msg string, err error) error {
	return &Error{Kind: KindPersistence, Msg: msg, Err: err}
}

// From extracts an *Error from err. Unclassified errors become KindInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Msg: "internal server error", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	return From(err).Kind
}
