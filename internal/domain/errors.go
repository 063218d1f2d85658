package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable classification of a query failure.
type Kind string

const (
	KindInvalidRegion         Kind = "InvalidRegion"
	KindUnknownRegion         Kind = "UnknownRegion"
	KindInvalidDateRange      Kind = "InvalidDateRange"
	KindInvalidSource         Kind = "InvalidSource"
	KindNoSourceAvailable     Kind = "NoSourceAvailable"
	KindUpstreamTimeout       Kind = "UpstreamTimeout"
	KindUpstreamUnavailable   Kind = "UpstreamUnavailable"
	KindQuotaExceeded         Kind = "QuotaExceeded"
	KindInvalidCredential     Kind = "InvalidCredential"
	KindMalformedUpstreamData Kind = "MalformedUpstreamData"
	KindInternal              Kind = "Internal"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrInvalidRegion         = &Error{Kind: KindInvalidRegion}
	ErrUnknownRegion         = &Error{Kind: KindUnknownRegion}
	ErrInvalidDateRange      = &Error{Kind: KindInvalidDateRange}
	ErrInvalidSource         = &Error{Kind: KindInvalidSource}
	ErrNoSourceAvailable     = &Error{Kind: KindNoSourceAvailable}
	ErrUpstreamTimeout       = &Error{Kind: KindUpstreamTimeout}
	ErrUpstreamUnavailable   = &Error{Kind: KindUpstreamUnavailable}
	ErrQuotaExceeded         = &Error{Kind: KindQuotaExceeded}
	ErrInvalidCredential     = &Error{Kind: KindInvalidCredential}
	ErrMalformedUpstreamData = &Error{Kind: KindMalformedUpstreamData}
)

// Error carries a Kind plus a human-readable message and optional diagnostic
// detail. Transport layers map Kind to their own status codes.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around a lower-level cause. The
// cause's text becomes the diagnostic detail.
func Wrap(kind Kind, err error, message string) *Error {
	e := &Error{Kind: kind, Message: message, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Fatal reports whether err must abort every in-flight fetch of a request
// without further retries.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindQuotaExceeded, KindInvalidCredential:
		return true
	}
	return false
}
