package shared

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error. Values are stable and exposed to API clients.
type Kind string

// Domain kinds.
const (
	KindNotFound           Kind = "NOT_FOUND"
	KindAlreadyArchived    Kind = "ALREADY_ARCHIVED"
	KindNotArchived        Kind = "NOT_ARCHIVED"
	KindValidation         Kind = "VALIDATION_FAILED"
	KindForbidden          Kind = "FORBIDDEN"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
)

// Storage kinds, produced only by db.MapError.
const (
	KindUniqueViolation      Kind = "UNIQUE_CONSTRAINT_VIOLATION"
	KindForeignKeyViolation  Kind = "FOREIGN_KEY_VIOLATION"
	KindNotNullViolation     Kind = "NOT_NULL_VIOLATION"
	KindCheckViolation       Kind = "CHECK_CONSTRAINT_VIOLATION"
	KindSerializationFailure Kind = "SERIALIZATION_FAILURE"
	KindInternalDatabase     Kind = "INTERNAL_DATABASE_ERROR"
)

var kindStatus = map[Kind]int{
	KindNotFound:           http.StatusNotFound,
	KindAlreadyArchived:    http.StatusConflict,
	KindNotArchived:        http.StatusConflict,
	KindValidation:         http.StatusBadRequest,
	KindForbidden:          http.StatusForbidden,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindInvalidCredentials: http.StatusUnauthorized,

	KindUniqueViolation:      http.StatusConflict,
	KindForeignKeyViolation:  http.StatusNotFound,
	KindNotNullViolation:     http.StatusBadRequest,
	KindCheckViolation:       http.StatusBadRequest,
	KindSerializationFailure: http.StatusConflict,
	KindInternalDatabase:     http.StatusInternalServerError,
}

// Status returns the HTTP status class of the kind.
func (k Kind) Status() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsStorage reports whether the kind originates from the database layer.
func (k Kind) IsStorage() bool {
	switch k {
	case KindUniqueViolation, KindForeignKeyViolation, KindNotNullViolation,
		KindCheckViolation, KindSerializationFailure, KindInternalDatabase:
		return true
	}
	return false
}

// Retryable reports whether the caller may retry the whole operation.
func (k Kind) Retryable() bool {
	return k == KindSerializationFailure
}

// Error is the error type surfaced by every use case.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field validation messages keyed by JSON field name.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status returns the HTTP status class.
func (e *Error) Status() int { return e.Kind.Status() }

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrAlreadyArchived    = &Error{Kind: KindAlreadyArchived}
	ErrNotArchived        = &Error{Kind: KindNotArchived}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
)

// NotFound reports a missing (or archived, where only active rows qualify) entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// AlreadyArchived reports an archive attempt on an archived entity.
func AlreadyArchived(entity string) *Error {
	return &Error{Kind: KindAlreadyArchived, Message: entity + " is already archived"}
}

// ArchivedReadOnly reports a mutation attempt on an archived entity.
func ArchivedReadOnly(entity string) *Error {
	return &Error{Kind: KindAlreadyArchived, Message: entity + " is archived and cannot be modified"}
}

// NotArchived reports a restore attempt on an active entity.
func NotArchived(entity string) *Error {
	return &Error{Kind: KindNotArchived, Message: entity + " is not archived"}
}

// Validation reports a rejected command.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a missing permission.
func Forbidden(permission string) *Error {
	return &Error{Kind: KindForbidden, Message: "missing permission " + permission}
}

// Unauthenticated reports a request without a principal.
func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "authentication required"}
}

// Storage wraps a database failure under a storage kind.
func Storage(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// UserSafeMessage returns a message suitable for API clients.
func UserSafeMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Kind == KindInternalDatabase {
			return "internal database error"
		}
		if appErr.Message != "" {
			return appErr.Message
		}
		return string(appErr.Kind)
	}
	return "internal error"
}
