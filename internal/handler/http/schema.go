package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/pkg/httputil"
	"github.com/utafrali/docsearch/pkg/validator"
)

// SchemaHandler handles schema declaration and description.
type SchemaHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSchemaHandler creates a new schema HTTP handler.
func NewSchemaHandler(svc *service.SearchService, logger *slog.Logger) *SchemaHandler {
	return &SchemaHandler{service: svc, logger: logger}
}

// DeclareSchemaRequest is the body of PUT /api/v1/schemas/{index}/{type}.
type DeclareSchemaRequest struct {
	Fields []domain.FieldSpec `json:"fields" validate:"required,min=1,max=1000,dive"`
}

// Declare handles PUT /api/v1/schemas/{index}/{type}
func (h *SchemaHandler) Declare(w http.ResponseWriter, r *http.Request) {
	var req DeclareSchemaRequest
	if !decodeBody(w, r, maxBodyBytes, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ts := domain.TypeSchema{
		Index:  chi.URLParam(r, "index"),
		Type:   chi.URLParam(r, "type"),
		Fields: req.Fields,
	}
	if err := h.service.DeclareSchema(r.Context(), ts); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ts})
}

// Describe handles GET /api/v1/schemas/{index}/{type}
func (h *SchemaHandler) Describe(w http.ResponseWriter, r *http.Request) {
	ts, err := h.service.DescribeSchema(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ts})
}

// Mapping handles GET /api/v1/schemas/{index}/{type}/_mapping
func (h *SchemaHandler) Mapping(w http.ResponseWriter, r *http.Request) {
	desc, err := h.service.DescribeMapping(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: desc})
}
