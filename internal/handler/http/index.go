package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/pkg/httputil"
)

// IndexHandler handles index administration.
type IndexHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewIndexHandler creates a new index HTTP handler.
func NewIndexHandler(svc *service.SearchService, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{service: svc, logger: logger}
}

// Drop handles DELETE /api/v1/indices/{index}
func (h *IndexHandler) Drop(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	if err := h.service.DropIndex(r.Context(), index); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"index": index, "status": "dropped"}})
}

// Refresh handles POST /api/v1/indices/{index}/_refresh
func (h *IndexHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	if err := h.service.RefreshIndex(r.Context(), index); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"index": index, "status": "refreshed"}})
}
