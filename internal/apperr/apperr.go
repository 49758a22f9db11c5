// Package apperr defines the error kinds shared by the scheduling core.
//
// Every error returned by a core operation wraps exactly one kind, so callers
// branch with errors.Is(err, apperr.ErrSlotFull) and friends. The optional
// Code narrows a kind for the UI (for example "no_such_slot" versus
// "doctor_unavailable" under ErrSlotUnavailable).
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation               = errors.New("validation failed")
	ErrInvalidState             = errors.New("invalid state transition")
	ErrSlotUnavailable          = errors.New("slot unavailable")
	ErrSlotFull                 = errors.New("slot full")
	ErrConcurrencyConflict      = errors.New("concurrency conflict")
	ErrReconciliationIncomplete = errors.New("reconciliation incomplete")
	ErrNotFound                 = errors.New("not found")
	ErrForbidden                = errors.New("forbidden")
)

// Codes refining ErrSlotUnavailable.
const (
	CodeNoSuchSlot        = "no_such_slot"
	CodeDoctorUnavailable = "doctor_unavailable"
)

type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithCode(kind error, code, format string, args ...any) error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind error, err error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) error {
	return New(ErrValidation, format, args...)
}

func InvalidState(format string, args ...any) error {
	return New(ErrInvalidState, format, args...)
}

func NotFound(format string, args ...any) error {
	return New(ErrNotFound, format, args...)
}

// CodeOf returns the most specific code carried by err, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// KindName maps err to a stable machine-readable name used on the wire.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrReconciliationIncomplete):
		return "reconciliation_incomplete"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal_error"
	}
}
