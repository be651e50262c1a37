package ml

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindIO              ErrorKind = "IOError"
	KindSchema          ErrorKind = "SchemaError"
	KindFormat          ErrorKind = "FormatError"
	KindNotReady        ErrorKind = "NotReady"
	KindUnknownCategory ErrorKind = "UnknownCategory"
	KindSchemaMismatch  ErrorKind = "SchemaMismatch"
)

// Error is the error type returned by every encoding, training and prediction
// step. Fields lists the offending field names for SchemaError.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  []string
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrIO              = &Error{Kind: KindIO}
	ErrSchema          = &Error{Kind: KindSchema}
	ErrFormat          = &Error{Kind: KindFormat}
	ErrNotReady        = &Error{Kind: KindNotReady}
	ErrUnknownCategory = &Error{Kind: KindUnknownCategory}
	ErrSchemaMismatch  = &Error{Kind: KindSchemaMismatch}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError tags err with kind unless it already carries one.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
