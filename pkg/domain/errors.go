package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrInstanceNotFound is returned when a correlation id cannot be found in the store.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrInvalidObjectID is returned when an object identifier cannot be turned into a remote path.
var ErrInvalidObjectID = errors.New("invalid object id")

// ErrSecretNotFound is returned by secret stores when the named secret does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// ErrInvalidPolicy is returned when a retry policy violates its bounds.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// ErrInvalidInstanceID is returned when a correlation id cannot be used as a storage key.
var ErrInvalidInstanceID = errors.New("invalid instance id")

// ErrInstanceConflict is returned when a correlation id is already bound to another object.
var ErrInstanceConflict = errors.New("instance id already in use")

// ErrLockLost is the cancellation cause when a distributed lease could not be kept.
var ErrLockLost = errors.New("distributed lock lost")

// ErrorKind classifies a step failure. The orchestrator decides retry-or-fail
// based on the kind alone.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NotFound"
	KindAccessDenied     ErrorKind = "AccessDenied"
	KindCredentialError  ErrorKind = "CredentialError"
	KindConnectionError  ErrorKind = "ConnectionError"
	KindRemoteWriteError ErrorKind = "RemoteWriteError"
	KindTransient        ErrorKind = "Transient"
)

// Retryable reports whether a failure of this kind may succeed if the same
// operation is attempted again unchanged.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindConnectionError
}

// StepError is the error type reported by fetchers and deliverers.
type StepError struct {
	Kind ErrorKind
	Err  error
}

// NewError wraps err with a failure kind.
func NewError(kind ErrorKind, err error) *StepError {
	return &StepError{Kind: kind, Err: err}
}

// Errorf builds a StepError from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *StepError {
	return &StepError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err.
// Errors that carry no kind are treated as Transient.
func KindOf(err error) ErrorKind {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Kind
	}
	return KindTransient
}

// IsCanceled reports whether err stems from the caller's context rather than the step itself.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
