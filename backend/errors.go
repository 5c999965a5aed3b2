package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter and engine failures. Kinds drive retry
// decisions: transport and rate-limit errors are retriable, everything
// else surfaces to the caller.
type ErrorKind string

const (
	KindConfig            ErrorKind = "config"
	KindTransport         ErrorKind = "transport"
	KindRateLimit         ErrorKind = "rate-limit"
	KindNotFound          ErrorKind = "not-found"
	KindInvalidDependency ErrorKind = "invalid-dependencies"
	KindValidation        ErrorKind = "validation"
	KindCorrupt           ErrorKind = "corrupt"
	KindUnsupported       ErrorKind = "unsupported"
	KindIO                ErrorKind = "io-error"
)

// StoreError is the structured error produced by storage adapters and the
// sync engine. It carries the failed operation, a kind for programmatic
// handling, an optional HTTP status code and an optional task reference.
type StoreError struct {
	Op         string    // e.g. "CreateTask", "GetTasks"
	Kind       ErrorKind
	StatusCode int    // HTTP status (0 if not an HTTP error)
	Message    string
	TaskRef    string // affected task id ("7" or "7.2"), if any
	Err        error  // underlying error, if any
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the failure is transient and worth retrying.
func (e *StoreError) Retriable() bool {
	if e.Kind == KindTransport || e.Kind == KindRateLimit {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewStoreError creates a new StoreError.
func NewStoreError(op string, kind ErrorKind, message string) *StoreError {
	return &StoreError{Op: op, Kind: kind, Message: message}
}

// WithStatus attaches an HTTP status code.
func (e *StoreError) WithStatus(code int) *StoreError {
	e.StatusCode = code
	return e
}

// WithTaskRef attaches the affected task reference for context.
func (e *StoreError) WithTaskRef(ref string) *StoreError {
	e.TaskRef = ref
	return e
}

// WithError wraps an underlying error.
func (e *StoreError) WithError(err error) *StoreError {
	e.Err = err
	return e
}

// KindOf extracts the error kind, or "" when err is not a StoreError.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRetriable reports whether err is transient (transport, rate limit or
// a 5xx response).
func IsRetriable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retriable()
	}
	return false
}

// IsValidation reports whether err is a rejected-input failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsInvalidDependency reports whether err is a dependency integrity
// failure.
func IsInvalidDependency(err error) bool {
	return KindOf(err) == KindInvalidDependency
}

// IsCorrupt reports whether err signals an unparseable persistent file.
// The engine refuses to start on corruption to avoid data loss.
func IsCorrupt(err error) bool {
	return KindOf(err) == KindCorrupt
}
