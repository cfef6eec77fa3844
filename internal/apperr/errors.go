// Package apperr defines the error kinds surfaced by the vault core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that map failures to responses.
type Kind string

// Error kinds.
const (
	KindIO            Kind = "io"
	KindPathTraversal Kind = "path_traversal"
	KindInvalidPath   Kind = "invalid_path"
	KindNotFound      Kind = "file_not_found"
	KindTooLarge      Kind = "file_too_large"
	KindParse         Kind = "parse_error"
	KindValidation    Kind = "validation_error"
	KindConflict      Kind = "conflict_error"
	KindRollback      Kind = "rollback_error"
	KindConcurrency   Kind = "concurrency_error"
)

var (
	ErrIO            = errors.New("i/o error")
	ErrPathTraversal = errors.New("path escapes vault root")
	ErrInvalidPath   = errors.New("invalid path")
	ErrNotFound      = errors.New("not found")
	ErrTooLarge      = errors.New("file too large")
	ErrParse         = errors.New("parse error")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrRollback      = errors.New("rollback failed")
	ErrConcurrency   = errors.New("concurrent modification")
)

var sentinels = map[Kind]error{
	KindIO:            ErrIO,
	KindPathTraversal: ErrPathTraversal,
	KindInvalidPath:   ErrInvalidPath,
	KindNotFound:      ErrNotFound,
	KindTooLarge:      ErrTooLarge,
	KindParse:         ErrParse,
	KindValidation:    ErrValidation,
	KindConflict:      ErrConflict,
	KindRollback:      ErrRollback,
	KindConcurrency:   ErrConcurrency,
}

// Error carries the kind, the failing operation and the path it touched.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// E builds an *Error. err may be nil, in which case the kind's sentinel is used.
func E(kind Kind, op, path string, err error) *Error {
	if err == nil {
		err = sentinels[kind]
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil && e.Err != sentinels[e.Kind] {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind, so errors.Is(err, ErrNotFound)
// holds for any *Error of KindNotFound.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of the first *Error in err's chain, or KindIO for
// unclassified non-nil errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindIO
}

// Fatal reports whether err may have left a file in an unknown state.
func Fatal(err error) bool {
	return KindOf(err) == KindRollback
}
