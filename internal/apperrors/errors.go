// Package apperrors defines the error taxonomy shared by the cash register
// services. Handlers translate a Kind into an HTTP status; services never
// deal with transport concerns.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by meaning, not by origin.
type Kind string

const (
	KindInvalidAmount          Kind = "invalid_amount"
	KindNoActiveSession        Kind = "no_active_session"
	KindAlreadyProcessed       Kind = "already_processed"
	KindAlreadyCancelled       Kind = "already_cancelled"
	KindAlreadyLiquidated      Kind = "already_liquidated"
	KindAmountExceedsRemaining Kind = "amount_exceeds_remaining"
	KindAmountExceedsOriginal  Kind = "amount_exceeds_original"
	KindOriginalNotFound       Kind = "original_not_found"
	KindNotFullyPaid           Kind = "not_fully_paid"
	KindInvalidTransition      Kind = "invalid_transition"
	KindUnauthorized           Kind = "unauthorized"
	KindSessionClosed          Kind = "session_closed"
	KindNotFound               Kind = "not_found"
	KindValidation             Kind = "validation"
	KindConflict               Kind = "conflict"
)

// Error carries a Kind plus a user-facing message. Err, when set, is the
// underlying cause and is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so sentinels like
// ErrNoActiveSession match any error of that kind regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new *Error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not part of the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-facing message of err, or "" for foreign errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidAmount          = New(KindInvalidAmount, "invalid amount")
	ErrNoActiveSession        = New(KindNoActiveSession, "no active cash session")
	ErrAlreadyProcessed       = New(KindAlreadyProcessed, "already processed")
	ErrAlreadyCancelled       = New(KindAlreadyCancelled, "already cancelled")
	ErrAlreadyLiquidated      = New(KindAlreadyLiquidated, "already liquidated")
	ErrAmountExceedsRemaining = New(KindAmountExceedsRemaining, "amount exceeds remaining balance")
	ErrAmountExceedsOriginal  = New(KindAmountExceedsOriginal, "amount exceeds original transaction")
	ErrOriginalNotFound       = New(KindOriginalNotFound, "original transaction not found")
	ErrNotFullyPaid           = New(KindNotFullyPaid, "service request is not fully paid")
	ErrInvalidTransition      = New(KindInvalidTransition, "invalid state transition")
	ErrUnauthorized           = New(KindUnauthorized, "missing required capability")
	ErrSessionClosed          = New(KindSessionClosed, "cash session is closed")
	ErrNotFound               = New(KindNotFound, "resource not found")
	ErrValidation             = New(KindValidation, "validation error")
	ErrConflict               = New(KindConflict, "conflicting request")
)
