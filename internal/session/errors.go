package session

import (
	"errors"

	"zvision-console/internal/backend"
)

type AuthErrorKind string

const (
	InvalidCredentials AuthErrorKind = "invalid_credentials"
	MalformedRequest   AuthErrorKind = "malformed_request"
	NetworkFailure     AuthErrorKind = "network_failure"
	ServerFailure      AuthErrorKind = "server_failure"
)

const (
	MsgUsernameRequired   = "Username is required"
	MsgPasswordRequired   = "Password is required"
	MsgInvalidCredentials = "Invalid username or password"
	MsgCheckInput         = "Please check your input and try again"
	MsgAuthFailed         = "Authentication failed"
	MsgNetwork            = "Network error. Please try again later"
	MsgLoginFailed        = "An error occurred during login"
	MsgSessionExpired     = "Session expired. Please log in again."
)

// AuthError is a failed login. Message is safe to show to the operator.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

var ErrAuthInProgress = errors.New("session: login already in progress")

func classifyLoginError(err error) *AuthError {
	var be *backend.Error
	if !errors.As(err, &be) {
		return &AuthError{Kind: ServerFailure, Message: MsgLoginFailed, Err: err}
	}
	switch be.Kind {
	case backend.KindUnauthorized:
		return &AuthError{Kind: InvalidCredentials, Message: MsgInvalidCredentials, Err: err}
	case backend.KindRejected:
		return &AuthError{Kind: InvalidCredentials, Message: MsgAuthFailed, Err: err}
	case backend.KindNetwork:
		return &AuthError{Kind: NetworkFailure, Message: MsgNetwork, Err: err}
	case backend.KindBadRequest:
		if be.Status == 400 {
			return &AuthError{Kind: MalformedRequest, Message: MsgCheckInput, Err: err}
		}
	}
	return &AuthError{Kind: ServerFailure, Message: MsgLoginFailed, Err: err}
}
