package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Sentinel error identity ---

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrConfiguration, ErrSessionClosed, ErrSchemaConflict, ErrSchemaMissing,
		ErrNotFound, ErrPageOutOfRange, ErrDeserialization, ErrTransport,
		ErrInvalidInput, ErrBackend,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

// --- AppError behavior ---

func TestAppError_ErrorString_WithWrappedError(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	appErr := &AppError{Code: "TRANSPORT_ERROR", Message: "search failed", Err: inner}
	assert.Contains(t, appErr.Error(), "TRANSPORT_ERROR")
	assert.Contains(t, appErr.Error(), "search failed")
	assert.Contains(t, appErr.Error(), "connection refused")
}

func TestAppError_ErrorString_WithoutWrappedError(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "article not found"}
	assert.Equal(t, "NOT_FOUND: article not found", appErr.Error())
}

func TestAppError_Unwrap_Nil(t *testing.T) {
	appErr := &AppError{Code: "TEST", Message: "test"}
	assert.Nil(t, appErr.Unwrap())
}

// --- Constructor functions ---

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"configuration", Configuration("no endpoints"), "CONFIGURATION_ERROR", http.StatusInternalServerError, ErrConfiguration},
		{"session closed", SessionClosed("search"), "SESSION_CLOSED", http.StatusServiceUnavailable, ErrSessionClosed},
		{"schema conflict", SchemaConflict("blog", "article", "field title"), "SCHEMA_CONFLICT", http.StatusConflict, ErrSchemaConflict},
		{"schema missing", SchemaMissing("blog", "article"), "SCHEMA_MISSING", http.StatusUnprocessableEntity, ErrSchemaMissing},
		{"not found", NotFound("document", "7"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"page out of range", PageOutOfRange(9995, 10, 10000), "PAGE_OUT_OF_RANGE", http.StatusBadRequest, ErrPageOutOfRange},
		{"deserialization", Deserialization("1", "field id"), "DESERIALIZATION_ERROR", http.StatusInternalServerError, ErrDeserialization},
		{"transport", Transport("get", fmt.Errorf("timeout")), "TRANSPORT_ERROR", http.StatusServiceUnavailable, ErrTransport},
		{"invalid input", InvalidInput("ids must not be empty"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"backend", Backend("parsing_exception", "bad query"), "BACKEND_ERROR", http.StatusBadGateway, ErrBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, Code(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestSchemaConflict_MessageNamesType(t *testing.T) {
	err := SchemaConflict("blog2", "article", "field content has analyzer standard")
	assert.Contains(t, err.Message, "blog2/article")
	assert.Contains(t, err.Message, "analyzer standard")
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "get document")
	assert.EqualError(t, err, "get document: resource not found")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- HTTPStatus ---

func TestHTTPStatus_Sentinels(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", ErrSchemaConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", ErrSchemaMissing), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", ErrPageOutOfRange), http.StatusBadRequest},
		{fmt.Errorf("x: %w", ErrTransport), http.StatusServiceUnavailable},
		{fmt.Errorf("x: %w", ErrSessionClosed), http.StatusServiceUnavailable},
		{fmt.Errorf("x: %w", ErrBackend), http.StatusBadGateway},
		{fmt.Errorf("x: %w", ErrDeserialization), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestHTTPStatus_AppErrorWins(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("schema", "blog/article"))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestCode_PlainError(t *testing.T) {
	assert.Equal(t, "INTERNAL_ERROR", Code(errors.New("plain")))
}
