package util

import (
	"context"
	"errors"
)

// Error classes. Every sentinel below unwraps to exactly one class so callers
// can branch on the class with errors.Is without knowing the concrete cause.
var (
	ErrConfig    = errors.New("configuration error")
	ErrTransient = errors.New("transient error")
	ErrPermanent = errors.New("permanent error")
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
)

var (
	ErrDimensionMismatch  = classed(ErrConfig, "vector dimension mismatch")
	ErrUnknownProvider    = classed(ErrConfig, "unknown provider")
	ErrMissingCredentials = classed(ErrConfig, "missing provider credentials")

	ErrRateLimited = classed(ErrTransient, "provider rate limited")

	ErrQuotaExhausted = classed(ErrPermanent, "provider quota exhausted")
	ErrContextTooLong = classed(ErrPermanent, "context too long")

	ErrSessionNotFound  = classed(ErrNotFound, "session not found")
	ErrDocumentNotFound = classed(ErrNotFound, "document not found")

	ErrSessionMismatch = classed(ErrConflict, "session bound to a different document")

	ErrNoExtractableText = errors.New("no extractable text found in PDF")
)

type classedError struct {
	class error
	msg   string
}

func classed(class error, msg string) error {
	return &classedError{class: class, msg: msg}
}

func (e *classedError) Error() string { return e.msg }

func (e *classedError) Unwrap() error { return e.class }

// ErrorKind is the coarse class of an error, used for API status mapping,
// metric labels and Temporal application error types.
type ErrorKind string

const (
	KindConfig    ErrorKind = "config"
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
	KindNotFound  ErrorKind = "not_found"
	KindConflict  ErrorKind = "conflict"
	KindCanceled  ErrorKind = "canceled"
	KindInternal  ErrorKind = "internal"
)

func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	default:
		return KindInternal
	}
}

// Transient marks err as retryable while keeping the original cause reachable.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &wrapped{class: ErrTransient, err: err}
}

type wrapped struct {
	class error
	err   error
}

func (w *wrapped) Error() string { return w.err.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.err, w.class} }
