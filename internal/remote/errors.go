package remote

import (
	"errors"
	"fmt"
	"net/http"

	"ridesync/internal/models"
)

// ErrorClass separates failures worth retrying from ones the remote store
// will keep refusing.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassRejected  ErrorClass = "rejected"
)

// WriteError is returned by every gateway Apply failure.
type WriteError struct {
	Class      ErrorClass
	Op         models.OperationKind
	StatusCode int
	Err        error
}

func (e *WriteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (http %d): %v", e.Op, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Class, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a WriteError the remote store refused
// on its merits.
func IsRejected(err error) bool {
	return ClassOf(err) == ClassRejected
}

// ClassOf returns the class of a WriteError; any other error is transient.
func ClassOf(err error) ErrorClass {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Class
	}
	return ClassTransient
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// classifyStatus maps an HTTP status onto an error class. Auth failures are
// transient: a rotated key fixes them without touching the queued item.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests,
		code == http.StatusUnauthorized,
		code == http.StatusForbidden:
		return ClassTransient
	case code >= 500:
		return ClassTransient
	case code >= 400:
		return ClassRejected
	default:
		return ClassTransient
	}
}

func writeError(op models.OperationKind, err error) *WriteError {
	var se *StatusError
	if errors.As(err, &se) {
		return &WriteError{Class: classifyStatus(se.StatusCode), Op: op, StatusCode: se.StatusCode, Err: err}
	}
	return &WriteError{Class: ClassTransient, Op: op, Err: err}
}
