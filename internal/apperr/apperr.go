// Package apperr classifies failures so the request boundary can turn each
// one into a single flash message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindSessionExpired
	KindCSRF
	KindDatabase
	KindNoChange
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindSessionExpired:
		return "session_expired"
	case KindCSRF:
		return "csrf"
	case KindDatabase:
		return "database"
	case KindNoChange:
		return "no_change"
	}
	return "unknown"
}

// Error is a classified failure. Msg is safe to show to the admin.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so sentinel-style checks work:
// errors.Is(err, &apperr.Error{Kind: apperr.KindCSRF}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Authentication(msg string) error { return &Error{Kind: KindAuthentication, Msg: msg} }

func SessionExpired(msg string) error { return &Error{Kind: KindSessionExpired, Msg: msg} }

func CSRF(msg string) error { return &Error{Kind: KindCSRF, Msg: msg} }

func NoChange(msg string) error { return &Error{Kind: KindNoChange, Msg: msg} }

// Database wraps a driver failure. A nil err returns nil.
func Database(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindDatabase, Err: err}
}

// DatabaseMsg wraps a driver failure with a fixed admin-facing message.
func DatabaseMsg(msg string, err error) error {
	return &Error{Kind: KindDatabase, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindDatabase for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindDatabase
}

// Message returns the text shown to the admin for err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && (ae.Kind != KindDatabase || ae.Msg != "") {
		return ae.Msg
	}
	return "Database error: " + err.Error()
}
