package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/query"
	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/pkg/httputil"
	"github.com/utafrali/docsearch/pkg/pagination"
	"github.com/utafrali/docsearch/pkg/validator"
)

// SearchHandler handles search requests.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: svc, logger: logger}
}

// SearchRequest is the body of POST /api/v1/search. Query uses the JSON
// form accepted by query.Decode; an absent query matches everything.
type SearchRequest struct {
	Index     string            `json:"index" validate:"required,identifier"`
	Type      string            `json:"type" validate:"omitempty,identifier"`
	Query     json.RawMessage   `json:"query"`
	Offset    int               `json:"offset" validate:"min=0"`
	Limit     int               `json:"limit" validate:"min=0"`
	Highlight *domain.Highlight `json:"highlight"`
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, maxBodyBytes, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	var q query.Query = query.MatchAll()
	if len(req.Query) > 0 && string(req.Query) != "null" {
		var err error
		if q, err = query.Decode(req.Query); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	h.run(w, r, service.SearchInput{
		Index:     req.Index,
		Type:      req.Type,
		Query:     q,
		Offset:    req.Offset,
		Limit:     req.Limit,
		Highlight: req.Highlight,
	})
}

// SearchGet handles GET /api/v1/search?index=&type=&q=&fields=&highlight=&offset=&limit=
//
// q is free text over the comma separated fields (the backend defaults when
// fields is empty); without q every document matches. highlight lists the
// fields to highlight with the default tags.
func (h *SearchHandler) SearchGet(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	index := params.Get("index")
	if index == "" {
		writeParamError(w, "index is required")
		return
	}

	page, err := pagination.FromRequest(r)
	if err != nil {
		writeParamError(w, err.Error())
		return
	}

	var q query.Query = query.MatchAll()
	if text := strings.TrimSpace(params.Get("q")); text != "" {
		q = query.FullText(text, splitList(params.Get("fields"))...)
	}

	in := service.SearchInput{
		Index:  index,
		Type:   params.Get("type"),
		Query:  q,
		Offset: page.Offset,
		Limit:  page.Limit,
	}
	if fields := splitList(params.Get("highlight")); len(fields) > 0 {
		in.Highlight = &domain.Highlight{Fields: fields}
	}
	h.run(w, r, in)
}

func (h *SearchHandler) run(w http.ResponseWriter, r *http.Request, in service.SearchInput) {
	res, err := h.service.Search(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
