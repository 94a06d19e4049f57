package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an AppError.
type ErrorKind string

const (
	// KindValidation indicates input that breaks a validation rule.
	KindValidation ErrorKind = "validation"

	// KindDatabase indicates a storage failure.
	KindDatabase ErrorKind = "database"

	// KindNotFound indicates a referenced entity does not exist.
	KindNotFound ErrorKind = "not_found"

	// KindAlreadyExists indicates a uniqueness violation.
	KindAlreadyExists ErrorKind = "already_exists"

	// KindBadRequest indicates a malformed request, such as an invalid ID.
	KindBadRequest ErrorKind = "bad_request"

	// KindInternal indicates an unexpected failure.
	KindInternal ErrorKind = "internal"

	// KindPermissionDenied indicates an operation blocked by a policy or a
	// path outside the data directory.
	KindPermissionDenied ErrorKind = "permission_denied"
)

// AppError is the error type returned by every command.
type AppError struct {
	Kind    ErrorKind              `json:"kind"`
	Message string                 `json:"message"`
	Entity  EntityType             `json:"entity,omitempty"`
	ID      string                 `json:"id,omitempty"`
	Err     error                  `json:"-"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.UserMessage()
	if e.ID != "" {
		msg = fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors of the same kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// UserMessage returns the message shown to the user.
func (e *AppError) UserMessage() string {
	switch e.Kind {
	case KindValidation:
		return "Validation failed: " + e.Message
	case KindNotFound:
		if e.Message != "" {
			return e.Message
		}
		return e.Entity.Title() + " not found"
	case KindAlreadyExists:
		if e.Message != "" {
			return e.Message
		}
		return e.Entity.Title() + " already exists"
	case KindDatabase:
		return "Database error: " + e.Message
	case KindBadRequest:
		return "Bad request: " + e.Message
	case KindPermissionDenied:
		return "Permission denied: " + e.Message
	default:
		return "Internal error"
	}
}

// HTTPStatus maps the kind onto an HTTP status code.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WithEntity sets the entity type.
func (e *AppError) WithEntity(entity EntityType) *AppError {
	e.Entity = entity
	return e
}

// WithID sets the entity ID.
func (e *AppError) WithID(id string) *AppError {
	e.ID = id
	return e
}

// WithDetail adds a detail field.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

// NewNotFoundError creates a not-found error for an entity.
func NewNotFoundError(entity EntityType, id string) *AppError {
	return &AppError{Kind: KindNotFound, Entity: entity, ID: id}
}

// NewAlreadyExistsError creates an already-exists error for an entity.
func NewAlreadyExistsError(entity EntityType, err error) *AppError {
	return &AppError{Kind: KindAlreadyExists, Entity: entity, Err: err}
}

// NewDatabaseError creates a database error for a failed operation.
func NewDatabaseError(operation string, err error) *AppError {
	return &AppError{Kind: KindDatabase, Message: operation, Err: err}
}

// NewBadRequestError creates a bad-request error.
func NewBadRequestError(message string) *AppError {
	return &AppError{Kind: KindBadRequest, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// NewPermissionDeniedError creates a permission-denied error.
func NewPermissionDeniedError(message string) *AppError {
	return &AppError{Kind: KindPermissionDenied, Message: message}
}

// KindOf returns the kind of err, or KindInternal for errors that are not
// AppErrors.
func KindOf(err error) ErrorKind {
	var e *AppError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsValidation reports whether err is a validation AppError.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsAlreadyExists reports whether err is an already-exists AppError.
func IsAlreadyExists(err error) bool {
	return KindOf(err) == KindAlreadyExists
}

// IsPermissionDenied reports whether err is a permission-denied AppError.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == KindPermissionDenied
}

// AsAppError converts any error into an AppError, wrapping unknown errors as
// internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var e *AppError
	if errors.As(err, &e) {
		return e
	}
	return NewInternalError(err.Error(), err)
}
