package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a request for a layer that is not configured.
var ErrNotFound = errors.New("not found")

// ValidationError reports a missing or malformed input parameter.
// It is always returned before any query reaches the database.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DBErrorKind distinguishes backend failures for logging and status mapping.
type DBErrorKind int

const (
	ConnectionFailed DBErrorKind = iota + 1
	QueryFailed
	Timeout
)

func (k DBErrorKind) String() string {
	switch k {
	case ConnectionFailed:
		return "connection_failed"
	case QueryFailed:
		return "query_failed"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// DatabaseError reports a failed query. Err holds the driver error for logs;
// its text is not part of the contract.
type DatabaseError struct {
	Kind DBErrorKind
	Err  error
}

func (e *DatabaseError) Error() string {
	switch e.Kind {
	case ConnectionFailed:
		return "database connection error"
	case Timeout:
		return "database query timeout"
	default:
		return "database query error"
	}
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DatabaseErrorKind returns the kind of a wrapped DatabaseError, or 0 if err is not one.
func DatabaseErrorKind(err error) DBErrorKind {
	var de *DatabaseError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
