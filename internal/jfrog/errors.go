package jfrog

import (
	"errors"
	"fmt"
)

// ErrNotFound means the artifact URL does not exist. During discovery this is
// a normal signal, not an error.
var ErrNotFound = errors.New("artifact not found")

// ErrUnauthorized means the repository rejected the credentials. Never
// retried.
var ErrUnauthorized = errors.New("unauthorized")

// transientError wraps network failures and 5xx responses that are worth
// retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(format string, args ...interface{}) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is a retryable network or server failure.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
