package model

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure into the closed set of variants the
// core exposes to callers. Handlers map kinds to HTTP status codes; nothing
// else about an error is part of the contract.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidArgument
	KindInvalidState
	KindUnavailable
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindUnavailable:
		return "unavailable"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is the closed error variant returned by the store, mutator and
// reader. It wraps an optional cause for logging while keeping the kind as
// the only part callers should branch on.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes two kernel errors equal when their kinds match, so callers can
// use errors.Is with the sentinel constructors below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func WrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func ErrNotFound(msg string) *Error        { return NewError(KindNotFound, msg) }
func ErrConflict(msg string) *Error        { return NewError(KindConflict, msg) }
func ErrInvalidArgument(msg string) *Error { return NewError(KindInvalidArgument, msg) }
func ErrInvalidState(msg string) *Error    { return NewError(KindInvalidState, msg) }

// KindOf extracts the kind from any error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
