// Package objerr defines the typed error kinds shared by every core
// component, the Go equivalent of original_source/include/core.hpp's
// object_db_exception, but tagged rather than a single exception type so
// callers can branch on Kind with errors.Is.
package objerr

import (
	"errors"
	"fmt"
)

// Kind tags the reason an operation failed.
type Kind int

const (
	// DuplicateKey: insert with an iterator whose leaf reports is_found.
	DuplicateKey Kind = iota + 1
	// KeyNotFound: update/remove with an iterator whose leaf does not report is_found.
	KeyNotFound
	// PastEnd: update/remove/next on an ended iterator where the operation is undefined.
	PastEnd
	// Corruption: node header inconsistent, entry size mismatches row traits, or buffer size cannot be reconciled.
	Corruption
	// InvalidArgument: entry size does not equal key_size + value_size, or a span is too short.
	InvalidArgument
	// IoError: underlying filesystem read/write/seek failed.
	IoError
	// OutOfSpace: cache or heap cannot allocate the requested block.
	OutOfSpace
)

func (k Kind) String() string {
	switch k {
	case DuplicateKey:
		return "DuplicateKey"
	case KeyNotFound:
		return "KeyNotFound"
	case PastEnd:
		return "PastEnd"
	case Corruption:
		return "Corruption"
	case InvalidArgument:
		return "InvalidArgument"
	case IoError:
		return "IoError"
	case OutOfSpace:
		return "OutOfSpace"
	default:
		return "Unknown"
	}
}

// Error is the error type every core operation returns on failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, objerr.ErrDuplicateKey) match any *Error of the
// same Kind, whatever its message.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Of reports whether err (or something it wraps) has the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel values so callers can write errors.Is(err, objerr.ErrDuplicateKey).
var (
	ErrDuplicateKey    = &Error{Kind: DuplicateKey, Msg: "key already present"}
	ErrKeyNotFound     = &Error{Kind: KeyNotFound, Msg: "key not found"}
	ErrPastEnd         = &Error{Kind: PastEnd, Msg: "iterator past end"}
	ErrCorruption      = &Error{Kind: Corruption, Msg: "node buffer is inconsistent"}
	ErrInvalidArgument = &Error{Kind: InvalidArgument, Msg: "invalid argument"}
	ErrIoError         = &Error{Kind: IoError, Msg: "i/o failure"}
	ErrOutOfSpace      = &Error{Kind: OutOfSpace, Msg: "allocator out of space"}
)
