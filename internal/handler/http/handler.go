// Package http exposes the search service over a JSON REST API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/utafrali/docsearch/pkg/httputil"
)

// Body size limits.
const (
	maxBodyBytes     = 1 << 20
	maxBulkBodyBytes = 10 << 20
)

// decodeBody reads a size-limited JSON body into dst. Numbers are kept as
// json.Number so integer fields survive without float rounding. It writes
// the 400 response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		msg := "invalid request body: " + err.Error()
		if errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: msg},
		})
		return false
	}
	return true
}

func writeParamError(w http.ResponseWriter, msg string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: msg},
	})
}
