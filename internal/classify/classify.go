// Package classify defines the error taxonomy shared by all remote-facing
// components.  Raw provider errors are translated into a small set of stable
// kinds at the boundary where they occur; the rest of the program deals only
// with classified errors.
package classify

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a classified error.  The string form of a
// Kind is part of the tool-call contract and must remain stable.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindPermissionDenied
	KindInvalidArgument
	KindSyntax
	KindNotFound
	KindExhausted
	KindUnauthenticated
	KindUnavailable
	KindCancelled
	KindTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindConfiguration:    "configuration",
	KindPermissionDenied: "permission_denied",
	KindInvalidArgument:  "invalid_argument",
	KindSyntax:           "syntax_error",
	KindNotFound:         "not_found",
	KindExhausted:        "resource_exhausted",
	KindUnauthenticated:  "unauthenticated",
	KindUnavailable:      "unavailable",
	KindCancelled:        "cancelled",
	KindTimeout:          "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Error is a classified error.  Message carries the human readable
// explanation; the underlying cause, if any, is retained for logging via
// Unwrap but is never rendered by Error().
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports a match when target is a classify.Error of the same Kind.  This
// allows errors.Is(err, &classify.Error{Kind: classify.KindTimeout}) style
// checks in tests and callers.
func (e *Error) Is(target error) bool {
	var ce *Error
	if !errors.As(target, &ce) {
		return false
	}
	return e.Kind == ce.Kind
}

// New creates a classified error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: transient(kind)}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, format string, a ...any) *Error {
	return New(kind, fmt.Sprintf(format, a...))
}

// Wrap classifies err under the given kind, keeping it as the cause.  If err
// is already classified, its kind is preserved and only the message prefix is
// added, so classification done close to the provider is not overwritten by
// outer layers.
func Wrap(kind Kind, message string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return &Error{
			Kind:      ce.Kind,
			Message:   message + ": " + ce.Message,
			Retryable: ce.Retryable,
			cause:     err,
		}
	}
	return &Error{Kind: kind, Message: message, Retryable: transient(kind), cause: err}
}

// transient reports whether errors of the given kind are worth retrying.
func transient(kind Kind) bool {
	switch kind {
	case KindUnavailable, KindExhausted, KindTimeout:
		return true
	}
	return false
}

// KindOf returns the kind of err, or KindUnknown when err carries no
// classification.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is classified as retryable.  Unclassified
// errors are not retryable.
func Retryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
