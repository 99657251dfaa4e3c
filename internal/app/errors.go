package service

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at the service boundary.
var (
	ErrValidation = errors.New("validation error")
	ErrStore      = errors.New("store error")
	ErrNotFound   = errors.New("session not found")
	ErrAnalysis   = errors.New("bad data")
	ErrNotStarted = errors.New("service not started")
)

// Error tags a failure with the operation and its kind. errors.Is matches
// both the kind and anything the cause wraps.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
