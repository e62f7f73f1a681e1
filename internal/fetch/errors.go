package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a source that does not exist. It is unrecoverable.
	ErrNotFound = errors.New("image not found")
	// ErrEmptyResponse is returned when a download carries no bytes.
	ErrEmptyResponse = errors.New("received response with zero content length")
)

// RecoverableError is a transient failure. The dispatcher retries it within
// the task's retry budget.
type RecoverableError struct {
	Source string
	Err    error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// UnrecoverableError is a terminal failure such as malformed data or a
// missing source. It is never retried.
type UnrecoverableError struct {
	Source string
	Err    error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// Recoverable wraps err as a *RecoverableError for source.
func Recoverable(source string, err error) error {
	return &RecoverableError{Source: source, Err: err}
}

// Unrecoverable wraps err as an *UnrecoverableError for source.
func Unrecoverable(source string, err error) error {
	return &UnrecoverableError{Source: source, Err: err}
}

// IsRecoverable reports whether err is, or wraps, a *RecoverableError.
// Unclassified errors are not recoverable.
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return errors.As(err, &re)
}
