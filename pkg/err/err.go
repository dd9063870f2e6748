package errprocess

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classify error for caller mapping
type Kind int

const (
	// KindUnknown unclassified error
	KindUnknown Kind = iota
	// KindValidation request content invalid (empty message etc.)
	KindValidation
	// KindAuthorization caller not allowed (non-owner edit/delete)
	KindAuthorization
	// KindNotFound target record missing
	KindNotFound
	// KindTransport realtime channel unavailable, logged and swallowed
	KindTransport
	// KindPersistence store unavailable, propagated to caller
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error typed error carry Kind
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap return wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is match by kind, errors.Is(err, ErrNotFound)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// sentinel for errors.Is
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

// New create typed error
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap wrap err with kind
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation create validation error
func Validation(msg string) error { return New(KindValidation, msg) }

// Authorization create authorization error
func Authorization(msg string) error { return New(KindAuthorization, msg) }

// NotFound create not found error
func NotFound(msg string) error { return New(KindNotFound, msg) }

// Persistence wrap store error
func Persistence(err error, msg string) error { return Wrap(KindPersistence, err, msg) }

// Transport wrap broadcast error
func Transport(err error, msg string) error { return Wrap(KindTransport, err, msg) }

// KindOf get error kind, KindUnknown if untyped
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCode map error to http status
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPersistence:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
