package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/service"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/httputil"
	"github.com/utafrali/docsearch/pkg/pagination"
	"github.com/utafrali/docsearch/pkg/validator"
)

// DocumentHandler handles document writes, reads and listing.
type DocumentHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewDocumentHandler creates a new document HTTP handler.
func NewDocumentHandler(svc *service.SearchService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{service: svc, logger: logger}
}

// BulkItem is one document of a bulk request.
type BulkItem struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields" validate:"required"`
}

// BulkRequest is the body of POST /api/v1/documents/{index}/{type}/_bulk.
type BulkRequest struct {
	Documents []BulkItem `json:"documents" validate:"required,min=1,max=1000,dive"`
}

// BulkItemResult reports the outcome of one bulk item.
type BulkItemResult struct {
	Position int                     `json:"position"`
	ID       string                  `json:"id,omitempty"`
	Status   string                  `json:"status"`
	Error    *httputil.ErrorResponse `json:"error,omitempty"`
}

// BulkResponse is the body of a bulk response.
type BulkResponse struct {
	Indexed int              `json:"indexed"`
	Failed  int              `json:"failed"`
	Items   []BulkItemResult `json:"items"`
}

// Create handles POST /api/v1/documents/{index}/{type}
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.put(w, r, "", http.StatusCreated)
}

// Put handles PUT /api/v1/documents/{index}/{type}/{id}
func (h *DocumentHandler) Put(w http.ResponseWriter, r *http.Request) {
	h.put(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *DocumentHandler) put(w http.ResponseWriter, r *http.Request, id string, status int) {
	var fields map[string]any
	if !decodeBody(w, r, maxBodyBytes, &fields) {
		return
	}

	doc := domain.Document{
		ID:     id,
		Index:  chi.URLParam(r, "index"),
		Type:   chi.URLParam(r, "type"),
		Fields: fields,
	}
	stored, err := h.service.PutDocument(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, status, httputil.Response{Data: map[string]string{"id": stored, "status": "indexed"}})
}

// Get handles GET /api/v1/documents/{index}/{type}/{id}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetDocument(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: doc})
}

// Delete handles DELETE /api/v1/documents/{index}/{type}/{id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteDocument(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "type"), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id, "status": "deleted"}})
}

// List handles GET /api/v1/documents/{index}/{type}?offset=&limit=
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromRequest(r)
	if err != nil {
		writeParamError(w, err.Error())
		return
	}

	res, err := h.service.ListDocuments(r.Context(), chi.URLParam(r, "index"), chi.URLParam(r, "type"), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	docs := make([]domain.Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		docs = append(docs, hit.Document)
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pagination.NewResult(docs, res.Total, page)})
}

// Bulk handles POST /api/v1/documents/{index}/{type}/_bulk. Item failures do
// not fail the request; each is reported at its position.
func (h *DocumentHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !decodeBody(w, r, maxBulkBodyBytes, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	index, docType := chi.URLParam(r, "index"), chi.URLParam(r, "type")
	docs := make([]domain.Document, 0, len(req.Documents))
	for _, item := range req.Documents {
		docs = append(docs, domain.Document{ID: item.ID, Index: index, Type: docType, Fields: item.Fields})
	}

	resp := BulkResponse{Items: make([]BulkItemResult, 0, len(docs))}
	for _, o := range h.service.PutDocuments(r.Context(), docs) {
		item := BulkItemResult{Position: o.Position, ID: o.ID, Status: "indexed"}
		if o.Err != nil {
			resp.Failed++
			item.Status = "failed"
			item.Error = &httputil.ErrorResponse{Code: apperrors.Code(o.Err), Message: o.Err.Error()}
		} else {
			resp.Indexed++
		}
		resp.Items = append(resp.Items, item)
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}
