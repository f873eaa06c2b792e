// Package xerrors defines the error taxonomy shared by every gchat-bridge
// component. Components return one of the sentinel Kind values wrapped with
// context via Wrap; callers use errors.Is against the sentinels and
// errors.As against *Error to recover structured fields such as RetryAfter.
package xerrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error into the taxonomy of §7.
type Kind string

const (
	StoreLocked           Kind = "StoreLocked"
	KeyUnavailable        Kind = "KeyUnavailable"
	MissingRequiredCookie Kind = "MissingRequiredCookie"
	NotLoggedIn           Kind = "NotLoggedIn"
	BootstrapUnavailable  Kind = "BootstrapUnavailable"
	Unauthorized          Kind = "Unauthorized"
	RateLimited           Kind = "RateLimited"
	ServerError           Kind = "ServerError"
	SchemaMismatch        Kind = "SchemaMismatch"
	Disconnected          Kind = "Disconnected"
	Cancelled             Kind = "Cancelled"
)

// sentinel values so callers can do errors.Is(err, xerrors.ErrUnauthorized).
var (
	ErrStoreLocked          = &Error{Kind: StoreLocked}
	ErrKeyUnavailable       = &Error{Kind: KeyUnavailable}
	ErrNotLoggedIn          = &Error{Kind: NotLoggedIn}
	ErrBootstrapUnavailable = &Error{Kind: BootstrapUnavailable}
	ErrUnauthorized         = &Error{Kind: Unauthorized}
	ErrRateLimited          = &Error{Kind: RateLimited}
	ErrServerError          = &Error{Kind: ServerError}
	ErrSchemaMismatch       = &Error{Kind: SchemaMismatch}
	ErrDisconnected         = &Error{Kind: Disconnected}
	ErrCancelled            = &Error{Kind: Cancelled}
)

// Error is the wrapper type carried through the system. Component is the
// package name that raised it (e.g. "cookievault", "auth"), matching the
// wrapped-error-prefix convention used throughout the codebase.
type Error struct {
	Kind       Kind
	Component  string
	Detail     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Component != "" {
		msg = e.Component + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind only, so errors.Is(err, xerrors.ErrUnauthorized) works
// regardless of Component/Detail/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind with a formatted detail message.
func New(kind Kind, component, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Component: component, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind that carries err as its cause.
func Wrap(kind Kind, component string, err error) *Error {
	return &Error{Kind: kind, Component: component, Err: err}
}

// MissingCookie builds the MissingRequiredCookie error for a specific name.
func MissingCookie(name string) *Error {
	return &Error{Kind: MissingRequiredCookie, Component: "cookievault", Detail: fmt.Sprintf("missing required cookie %q", name)}
}

// WithRetryAfter returns a copy of e carrying a RetryAfter duration, for
// RateLimited errors that surface a Retry-After header.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	c := *e
	c.RetryAfter = d
	return &c
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe, true
	}
	return nil, false
}
