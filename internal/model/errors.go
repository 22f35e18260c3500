package model

import (
	"errors"
	"fmt"
)

// Code identifies the category of a business-rule rejection.
type Code string

const (
	// CodeAlreadyInQueue indicates the subject already has a queue entry.
	CodeAlreadyInQueue Code = "ALREADY_IN_QUEUE"

	// CodeNotInQueue indicates the subject has no queue entry.
	CodeNotInQueue Code = "NOT_IN_QUEUE"

	// CodeAlreadyReserved indicates the subject already holds a reservation.
	CodeAlreadyReserved Code = "ALREADY_RESERVED"

	// CodeQueueFull indicates the queue has reached its configured size
	// limit.
	CodeQueueFull Code = "QUEUE_FULL"

	// CodeNotReserved indicates the subject holds no reservation.
	CodeNotReserved Code = "NOT_RESERVED"

	// CodeAdmissionDenied indicates the subject is outside the admission
	// window or its lease has expired.
	CodeAdmissionDenied Code = "ADMISSION_DENIED"

	// CodeResourceFull indicates the resource has no free capacity.
	CodeResourceFull Code = "RESOURCE_FULL"

	// CodeResourceNotFound indicates the resource is not in the directory.
	CodeResourceNotFound Code = "RESOURCE_NOT_FOUND"

	// CodeConcurrentConflict indicates the operation lost a storage-level
	// serialization race on every retry. Safe to retry.
	CodeConcurrentConflict Code = "CONCURRENT_CONFLICT"

	// CodeInvalidSubject indicates an empty or malformed identifier.
	CodeInvalidSubject Code = "INVALID_SUBJECT"
)

// Sentinel errors for errors.Is comparisons. Errors returned by the core
// carry more context but match these by code.
var (
	ErrAlreadyInQueue     = &Error{Code: CodeAlreadyInQueue, Message: "subject already in queue"}
	ErrNotInQueue         = &Error{Code: CodeNotInQueue, Message: "subject not in queue"}
	ErrAlreadyReserved    = &Error{Code: CodeAlreadyReserved, Message: "subject already holds a reservation"}
	ErrQueueFull          = &Error{Code: CodeQueueFull, Message: "queue is full"}
	ErrNotReserved        = &Error{Code: CodeNotReserved, Message: "subject holds no reservation"}
	ErrAdmissionDenied    = &Error{Code: CodeAdmissionDenied, Message: "subject not admitted"}
	ErrResourceFull       = &Error{Code: CodeResourceFull, Message: "resource is full"}
	ErrResourceNotFound   = &Error{Code: CodeResourceNotFound, Message: "resource not found"}
	ErrConcurrentConflict = &Error{Code: CodeConcurrentConflict, Message: "concurrent conflict"}
	ErrInvalidSubject     = &Error{Code: CodeInvalidSubject, Message: "invalid identifier"}
)

// Error is a business-rule rejection returned by queue and booking
// operations. None of these are retried automatically except
// CodeConcurrentConflict, which is retried inside the store.
type Error struct {
	Code     Code
	Message  string
	Subject  string
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Subject != "" {
		msg += fmt.Sprintf(" (subject=%s", e.Subject)
		if e.Resource != "" {
			msg += fmt.Sprintf(", resource=%s", e.Resource)
		}
		msg += ")"
	} else if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so callers can compare against
// the sentinel values regardless of subject or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an Error for a subject with a formatted message.
func Errorf(code Code, subject, format string, args ...any) *Error {
	return &Error{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err. Returns "" for nil and for errors that
// are not business-rule rejections.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsBusinessError reports whether err is a business-rule rejection, as
// opposed to an infrastructure failure.
func IsBusinessError(err error) bool {
	code := CodeOf(err)
	return code != "" && code != CodeConcurrentConflict
}
