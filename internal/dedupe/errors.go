package dedupe

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrPersistence   = errors.New("persistence error")
)

// Error carries the kind of failure, the operation and the record it concerns.
type Error struct {
	Kind error
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	subject := e.Op
	if e.ID != "" {
		subject = fmt.Sprintf("%s %s", e.Op, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", subject, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", subject, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

func validationError(op, message string) *Error {
	return newError(ErrValidation, op, "", errors.New(message))
}
