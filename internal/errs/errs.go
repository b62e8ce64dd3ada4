// Package errs holds the error kinds surfaced by the service and their HTTP
// status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a sentinel error kind carrying the HTTP status it maps to.
type Error struct {
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an error kind.
func New(httpStatus int, message string) *Error {
	return &Error{HTTPStatus: httpStatus, Message: message}
}

var (
	ErrUnauthorized    = New(http.StatusUnauthorized, "unauthorized")
	ErrNotFound        = New(http.StatusNotFound, "not found")
	ErrInvalidArgument = New(http.StatusBadRequest, "invalid argument")
	ErrStorage         = New(http.StatusInternalServerError, "storage error")
	ErrUpstream        = New(http.StatusBadGateway, "upstream provider error")
)

type wrapped struct {
	kind *Error
	msg  string
	err  error
}

func (w *wrapped) Error() string {
	if w.err == nil {
		return w.msg
	}
	return w.msg + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() []error {
	if w.err == nil {
		return []error{w.kind}
	}
	return []error{w.kind, w.err}
}

// Wrap tags err with kind so that errors.Is(result, kind) holds while the
// original chain stays reachable.
func Wrap(kind *Error, err error, format string, args ...any) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// Newf returns an error of the given kind without an underlying cause.
func Newf(kind *Error, format string, args ...any) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Kind returns the first error kind found in err's chain, or nil.
func Kind(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatus maps err onto a response status. Untagged errors are 500.
func HTTPStatus(err error) int {
	if e := Kind(err); e != nil {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message safe to return to clients. Server-side
// failures never leak their cause.
func PublicMessage(err error) string {
	e := Kind(err)
	if e == nil {
		return "internal server error"
	}
	if e.HTTPStatus >= http.StatusInternalServerError {
		return e.Message
	}
	var w *wrapped
	if errors.As(err, &w) && w.msg != "" {
		return w.msg
	}
	return e.Message
}
