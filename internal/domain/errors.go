package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the engine can surface or absorb.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_error"
	KindSourceTimeout     ErrorKind = "source_timeout"
	KindSourceFailure     ErrorKind = "source_failure"
	KindHydrationMiss     ErrorKind = "hydration_miss"
	KindGenerationFailure ErrorKind = "generation_failure"
	KindBudgetExceeded    ErrorKind = "budget_exceeded"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrSourceTimeout     = errors.New("source timeout")
	ErrSourceFailure     = errors.New("retrieval unavailable")
	ErrHydrationMiss     = errors.New("hydration miss")
	ErrGenerationFailure = errors.New("generation failure")
	ErrBudgetExceeded    = errors.New("budget exceeded")

	// ErrNotFound is returned by collaborators when an id does not exist for the tenant.
	ErrNotFound = errors.New("not found")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:        ErrValidation,
	KindSourceTimeout:     ErrSourceTimeout,
	KindSourceFailure:     ErrSourceFailure,
	KindHydrationMiss:     ErrHydrationMiss,
	KindGenerationFailure: ErrGenerationFailure,
	KindBudgetExceeded:    ErrBudgetExceeded,
}

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinel as well as the wrapped cause.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// NewValidationError reports a malformed plan or filter.
func NewValidationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NewError wraps cause with a kind.
func NewError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the kind of the first *Error in the chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
