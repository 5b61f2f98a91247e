// Package apperr defines the error taxonomy shared by the editor, persistence and upload layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input; the operation is aborted before any I/O.
	ErrValidation = errors.New("validation error")
	// ErrPermissionDenied marks unauthenticated or non-owner access.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound marks a missing document.
	ErrNotFound = errors.New("not found")
	// ErrUploadFailure marks a blob store failure during image upload.
	ErrUploadFailure = errors.New("upload failure")
	// ErrPersistence marks a document store failure unrelated to permissions.
	ErrPersistence = errors.New("persistence failure")
)

var kinds = []error{ErrValidation, ErrPermissionDenied, ErrNotFound, ErrUploadFailure, ErrPersistence}

// Error carries an "operation.reason" code, the taxonomy kind and the underlying cause.
type Error struct {
	code string
	kind error
	err  error
}

// New builds an *Error for the operation and reason. The cause may be nil.
func New(operation, reason string, kind error, cause error) error {
	return &Error{
		code: fmt.Sprintf("%s.%s", operation, reason),
		kind: kind,
		err:  cause,
	}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	unwrapped := make([]error, 0, 2)
	if e.kind != nil {
		unwrapped = append(unwrapped, e.kind)
	}
	if e.err != nil {
		unwrapped = append(unwrapped, e.err)
	}
	return unwrapped
}

// Code returns the "operation.reason" code.
func (e *Error) Code() string {
	return e.code
}

// Reason returns the trailing reason segment of the code.
func (e *Error) Reason() string {
	for index := len(e.code) - 1; index >= 0; index-- {
		if e.code[index] == '.' {
			return e.code[index+1:]
		}
	}
	return e.code
}

// Kind returns the taxonomy sentinel.
func (e *Error) Kind() error {
	return e.kind
}

// KindOf returns the taxonomy sentinel matched by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// CodeOf returns the code of the first *Error in the chain, or "".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in the chain, or "".
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason()
	}
	return ""
}
