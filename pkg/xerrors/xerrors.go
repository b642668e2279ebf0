// Package xerrors defines the error kinds used throughout the extraction
// engine (see spec §7). Every kind is a sentinel that callers compare with
// errors.Is; Kind.Wrap attaches it to an underlying cause so both
// classification and the original message survive.
package xerrors

import "errors"

// Kind is one of the named error categories from the error-handling design.
type Kind string

const (
	ConfigInvalid      Kind = "ConfigInvalid"
	AuthMissing        Kind = "AuthMissing"
	AuthInvalid        Kind = "AuthInvalid"
	SchemaUnsupported  Kind = "SchemaUnsupported"
	Transient          Kind = "TransientError"
	Permanent          Kind = "PermanentError"
	Validation         Kind = "ValidationError"
	TokenLimitReached  Kind = "TokenLimitReached"
	ChunkFailed        Kind = "ChunkFailed"
	BatchFailed        Kind = "BatchFailed"
	MissingLineRanges  Kind = "MissingLineRanges"
	InvalidLineRanges  Kind = "InvalidLineRanges"
)

// Error pairs a Kind with an underlying cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, SomeKind) work by comparing kinds, since Kind
// itself also implements error (see below).
func (e *Error) Is(target error) bool {
	var k Kind
	if ke, ok := target.(*Error); ok {
		k = ke.Kind
	} else if kk, ok := target.(Kind); ok {
		k = kk
	} else {
		return false
	}
	return e.Kind == k
}

// Error lets a bare Kind be used as an errors.Is target: errors.Is(err, xerrors.Transient).
func (k Kind) Error() string { return string(k) }

// Wrap builds an *Error of this kind around cause. If cause is nil, New is
// used instead so the zero-value "no cause" case still prints sensibly.
func (k Kind) Wrap(cause error) error {
	if cause == nil {
		return &Error{Kind: k}
	}
	return &Error{Kind: k, Cause: cause}
}

// New builds a bare *Error of this kind with a message, no wrapped cause.
func (k Kind) New(msg string) error {
	if msg == "" {
		return &Error{Kind: k}
	}
	return &Error{Kind: k, Cause: errors.New(msg)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error produced by this package. ok is false for errors of unknown kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err was classified with the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
