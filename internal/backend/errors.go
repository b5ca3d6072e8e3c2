package backend

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindUnauthorized ErrorKind = "unauthorized"
	KindBadRequest   ErrorKind = "bad_request"
	KindNotFound     ErrorKind = "not_found"
	KindRequest      ErrorKind = "request"
	KindServer       ErrorKind = "server"
	KindRejected     ErrorKind = "rejected"
)

// Error is returned by every Client method that fails. Status is zero for network errors.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("backend %s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v", e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("backend %s (%d)", e.Kind, e.Status)
	default:
		return "backend " + string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindBadRequest
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindRequest
	}
}

// KindOf reports the kind of a backend error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func IsUnauthorized(err error) bool { return IsKind(err, KindUnauthorized) }

func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// MessageOf returns the backend-supplied message, if any.
func MessageOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return ""
}
