// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure that crosses a public boundary of the auth runtime is an *E carrying a
// machine-readable Kind and a displayable Message, so callers branch on the kind
// instead of matching strings.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// NetworkError indicates the transport failed (unreachable, reset, aborted).
	NetworkError Kind = "network_error"
	// RequestTimeout indicates a request exceeded its deadline.
	RequestTimeout Kind = "request_timeout"
	// InvalidCredentials indicates the email/password pair was rejected.
	InvalidCredentials Kind = "invalid_credentials"
	// EmailNotAllowed indicates the backend refuses this email address.
	EmailNotAllowed Kind = "email_not_allowed"
	// EmailNotVerified indicates login requires a verified email first.
	EmailNotVerified Kind = "email_not_verified"
	// EmailTaken indicates an account with this email already exists.
	EmailTaken Kind = "email_taken"
	// WeakPassword indicates the password does not satisfy backend rules.
	WeakPassword Kind = "weak_password"
	// AccountLocked indicates the account is locked after failed attempts.
	AccountLocked Kind = "account_locked"
	// TokenInvalid indicates the presented token was rejected.
	TokenInvalid Kind = "token_invalid"
	// TokenExpired indicates the presented token is past its expiry.
	TokenExpired Kind = "token_expired"
	// InsufficientPermissions indicates an authorization refusal.
	InsufficientPermissions Kind = "insufficient_permissions"
	// NotAuthenticated indicates an operation needs a session and none exists.
	NotAuthenticated Kind = "not_authenticated"
	// BiometricError indicates a step-up authentication failure.
	BiometricError Kind = "biometric_error"
	// StorageError indicates secure storage could not be written.
	StorageError Kind = "storage_error"
	// ServerError indicates the backend answered with a 5xx status.
	ServerError Kind = "server_error"
	// BadRequest indicates the backend rejected the request shape.
	BadRequest Kind = "bad_request"
	// InvalidResponse indicates a response failed boundary validation.
	InvalidResponse Kind = "invalid_response"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	// Status is the HTTP status that produced the error, zero for local failures.
	Status int
	Err    error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, errors.New(errors.TokenInvalid, "")) works.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// WithStatus returns a copy of e annotated with an HTTP status.
func (e *E) WithStatus(status int) *E {
	cp := *e
	cp.Status = status
	return &cp
}

// KindOf returns the Kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the displayable message of err.
func MessageOf(err error) string {
	var e *E
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsTransient reports whether err is a failure the caller may retry later
// without discarding the session.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case NetworkError, RequestTimeout, ServerError:
		return true
	}
	return false
}

// IsTerminalAuth reports whether err means the session can no longer be renewed.
func IsTerminalAuth(err error) bool {
	switch KindOf(err) {
	case TokenInvalid, TokenExpired:
		return true
	}
	return false
}
