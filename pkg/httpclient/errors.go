package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// ErrorResponse mirrors the error member of the httputil.Response envelope.
type ErrorResponse struct {
	Error *struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		Fields    map[string]string `json:"fields,omitempty"`
		RequestID string            `json:"request_id,omitempty"`
	} `json:"error"`
}

// sentinels maps API error codes back to the errors they were produced from.
var sentinels = map[string]error{
	"CONFIGURATION_ERROR":   apperrors.ErrConfiguration,
	"SESSION_CLOSED":        apperrors.ErrSessionClosed,
	"SCHEMA_CONFLICT":       apperrors.ErrSchemaConflict,
	"SCHEMA_MISSING":        apperrors.ErrSchemaMissing,
	"NOT_FOUND":             apperrors.ErrNotFound,
	"PAGE_OUT_OF_RANGE":     apperrors.ErrPageOutOfRange,
	"DESERIALIZATION_ERROR": apperrors.ErrDeserialization,
	"TRANSPORT_ERROR":       apperrors.ErrTransport,
	"BACKEND_ERROR":         apperrors.ErrBackend,
	"INVALID_INPUT":         apperrors.ErrInvalidInput,
	"INVALID_PARAMETER":     apperrors.ErrInvalidInput,
	"VALIDATION_ERROR":      apperrors.ErrInvalidInput,
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an *apperrors.AppError that keeps the server's code and status, so
// callers can match it with errors.Is as if the call had been local. Bodies
// that are not an error envelope produce a plain error with the status.
//
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var body ErrorResponse
	if json.Unmarshal(bodyBytes, &body) == nil && body.Error != nil {
		msg := fmt.Sprintf("%s: %s", serviceName, body.Error.Message)
		for field, problem := range body.Error.Fields {
			msg += fmt.Sprintf("; %s %s", field, problem)
		}
		return &apperrors.AppError{
			Code:    body.Error.Code,
			Message: msg,
			Status:  resp.StatusCode,
			Err:     sentinels[body.Error.Code],
		}
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
