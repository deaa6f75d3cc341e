package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the document search core. Callers match them with errors.Is.
var (
	ErrConfiguration   = errors.New("invalid configuration")
	ErrSessionClosed   = errors.New("session closed")
	ErrSchemaConflict  = errors.New("schema conflict")
	ErrSchemaMissing   = errors.New("schema missing")
	ErrNotFound        = errors.New("resource not found")
	ErrPageOutOfRange  = errors.New("page out of range")
	ErrDeserialization = errors.New("deserialization failed")
	ErrTransport       = errors.New("transport failure")
	ErrInvalidInput    = errors.New("invalid input")
	ErrBackend         = errors.New("backend rejected request")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Configuration creates an error for an unusable session or engine configuration.
func Configuration(message string) *AppError {
	return &AppError{
		Code:    "CONFIGURATION_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrConfiguration,
	}
}

// SessionClosed creates an error for an operation attempted after Close.
func SessionClosed(op string) *AppError {
	return &AppError{
		Code:    "SESSION_CLOSED",
		Message: fmt.Sprintf("%s called on a closed session", op),
		Status:  http.StatusServiceUnavailable,
		Err:     ErrSessionClosed,
	}
}

// SchemaConflict creates a 409 error for an incompatible mapping.
func SchemaConflict(index, docType, detail string) *AppError {
	return &AppError{
		Code:    "SCHEMA_CONFLICT",
		Message: fmt.Sprintf("schema for %s/%s conflicts with existing mapping: %s", index, docType, detail),
		Status:  http.StatusConflict,
		Err:     ErrSchemaConflict,
	}
}

// SchemaMissing creates a 422 error for a write against an undeclared type.
func SchemaMissing(index, docType string) *AppError {
	return &AppError{
		Code:    "SCHEMA_MISSING",
		Message: fmt.Sprintf("no schema declared for %s/%s", index, docType),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrSchemaMissing,
	}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// PageOutOfRange creates a 400 error for a page beyond the result window.
func PageOutOfRange(offset, limit, window int) *AppError {
	return &AppError{
		Code:    "PAGE_OUT_OF_RANGE",
		Message: fmt.Sprintf("offset %d + limit %d exceeds result window %d", offset, limit, window),
		Status:  http.StatusBadRequest,
		Err:     ErrPageOutOfRange,
	}
}

// Deserialization creates an error for a stored document that does not match its schema.
func Deserialization(id, detail string) *AppError {
	return &AppError{
		Code:    "DESERIALIZATION_ERROR",
		Message: fmt.Sprintf("document %s: %s", id, detail),
		Status:  http.StatusInternalServerError,
		Err:     ErrDeserialization,
	}
}

// Transport creates a 503 error for an unreachable backend or an exceeded deadline.
func Transport(op string, err error) *AppError {
	return &AppError{
		Code:    "TRANSPORT_ERROR",
		Message: fmt.Sprintf("%s: %v", op, err),
		Status:  http.StatusServiceUnavailable,
		Err:     ErrTransport,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Backend creates a 502 error for a request the backend refused.
func Backend(errType, reason string) *AppError {
	return &AppError{
		Code:    "BACKEND_ERROR",
		Message: fmt.Sprintf("%s: %s", errType, reason),
		Status:  http.StatusBadGateway,
		Err:     ErrBackend,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSchemaConflict):
		return http.StatusConflict
	case errors.Is(err, ErrSchemaMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrPageOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransport), errors.Is(err, ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable code for err, or INTERNAL_ERROR.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}
