// Package fserr defines the structured error taxonomy shared by the store,
// engine, manager, and RPC layers.
package fserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for RPC clients, independent of its message text.
type Kind string

const (
	EmptyQuery          Kind = "EmptyQuery"
	InvalidArgument     Kind = "InvalidArgument"
	DimensionMismatch   Kind = "DimensionMismatch"
	AmbiguousSource     Kind = "AmbiguousSource"
	ModelDisabled       Kind = "ModelDisabled"
	MemoryBudgetExceeded Kind = "MemoryBudgetExceeded"
	ModelLoadFailed     Kind = "ModelLoadFailed"
	StoreUnavailable    Kind = "StoreUnavailable"
	DaemonBusy          Kind = "DaemonBusy"
	ProtocolError       Kind = "ProtocolError"
)

// Error is a structured error carrying a Kind plus optional extra data
// (e.g. AmbiguousSource's candidate list) for the RPC layer to surface
// under response.error.data.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a structured error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error without losing it.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Wrapped: err}
}

// WithData attaches structured payload data (e.g. ambiguous-source candidates).
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// KindOf extracts the Kind carried by err, walking the Unwrap chain.
// Returns ("", false) if err carries no *Error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
