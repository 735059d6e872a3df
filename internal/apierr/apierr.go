package apierr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell invalid input from an
// unreachable service from an expired session.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNetwork     Kind = "network"
	KindCanceled    Kind = "canceled"
	KindAuthExpired Kind = "auth_expired"
	KindService     Kind = "service"
	KindMalformed   Kind = "malformed_response"
)

const (
	msgUnreachable = "could not reach the service"
	msgTimeout     = "request timed out, the service may be starting; try again in a moment"
	msgMalformed   = "the service responded unexpectedly"
	msgExpired     = "session expired, please log in again"
	msgCanceled    = "canceled"
)

// ErrAuthRequired is returned when a step needs a credential and none is stored.
var ErrAuthRequired = Validation("authentication required")

type Error struct {
	Kind Kind
	// Message is safe to show to the user for Validation and Service errors.
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrAuthRequired)
// holds for every authentication-required validation error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || e.Message == t.Message)
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Service(status int, msg string) *Error {
	if msg == "" {
		msg = fmt.Sprintf("service returned status %d", status)
	}
	return &Error{Kind: KindService, Message: msg, StatusCode: status}
}

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: msgUnreachable, Err: err}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindNetwork, Message: msgTimeout, Err: err}
}

func Canceled(err error) *Error {
	return &Error{Kind: KindCanceled, Message: msgCanceled, Err: err}
}

func AuthExpired(status int) *Error {
	return &Error{Kind: KindAuthExpired, Message: msgExpired, StatusCode: status}
}

func Malformed(err error) *Error {
	return &Error{Kind: KindMalformed, Message: msgMalformed, Err: err}
}

// FromContext maps a finished context to the matching error kind.
func FromContext(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Timeout(err)
	case errors.Is(ctx.Err(), context.Canceled):
		return Canceled(err)
	default:
		return Network(err)
	}
}

// KindOf returns the kind of err, or an empty kind for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns a message that never leaks transport details.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return msgMalformed
	}

	switch e.Kind {
	case KindValidation, KindService, KindNetwork:
		return e.Message
	case KindAuthExpired:
		return msgExpired
	case KindCanceled:
		return msgCanceled
	default:
		return msgMalformed
	}
}
