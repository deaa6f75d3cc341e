// Package search runs queries against the backend and turns the raw
// response into typed results.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/engine"
	"github.com/utafrali/docsearch/internal/query"
	"github.com/utafrali/docsearch/internal/session"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/validator"
)

// Defaults match Elasticsearch's index.max_result_window and the usual page size.
const (
	DefaultPageSize        = 10
	DefaultMaxResultWindow = 10000
)

// Config holds paging limits.
type Config struct {
	DefaultPageSize int `validate:"min=1"`
	MaxResultWindow int `validate:"min=1"`
}

// DefaultConfig returns the Elasticsearch defaults.
func DefaultConfig() Config {
	return Config{DefaultPageSize: DefaultPageSize, MaxResultWindow: DefaultMaxResultWindow}
}

// Request is one search: a query bound to an index, an optional type filter,
// a page and an optional highlight spec. Limit 0 means the default page size.
type Request struct {
	Query     query.Query
	Index     string
	Type      string
	Offset    int
	Limit     int
	Highlight *domain.Highlight
}

// Envelope is the raw backend result of one search.
type Envelope struct {
	Index     string
	Type      string
	Total     uint64
	TookMs    int64
	Highlight *domain.Highlight
	Hits      []RawHit
}

// RawHit is one hit as the backend returned it.
type RawHit struct {
	Index     string              `json:"_index"`
	ID        string              `json:"_id"`
	Score     float64             `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []RawHit        `json:"hits"`
	} `json:"hits"`
}

// Executor sends search requests through the session.
type Executor struct {
	session *session.Session
	cfg     Config
	logger  *slog.Logger
}

// NewExecutor creates an executor. Zero config values take the defaults.
func NewExecutor(s *session.Session, cfg Config, logger *slog.Logger) *Executor {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = DefaultPageSize
	}
	if cfg.MaxResultWindow <= 0 {
		cfg.MaxResultWindow = DefaultMaxResultWindow
	}
	return &Executor{session: s, cfg: cfg, logger: logger}
}

// Execute runs req as exactly one backend call. Hits beyond the result
// window fail with ErrPageOutOfRange instead of being truncated; transport
// failures are returned as they are, without retry.
func (x *Executor) Execute(ctx context.Context, req Request) (*Envelope, error) {
	if err := x.normalize(&req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(x.body(req))
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	var raw []byte
	err = x.session.Do(ctx, "search", func(ctx context.Context, e engine.Engine) error {
		var err error
		raw, err = e.Search(ctx, req.Index, body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", req.Index, err)
	}

	env, err := decodeResponse(raw)
	if err != nil {
		return nil, err
	}
	env.Index = req.Index
	env.Type = req.Type
	if req.Highlight != nil {
		h := *req.Highlight
		h.Fields = append([]string(nil), req.Highlight.Fields...)
		env.Highlight = &h
	}

	x.logger.DebugContext(ctx, "search executed",
		slog.String("index", req.Index),
		slog.String("type", req.Type),
		slog.Int("offset", req.Offset),
		slog.Int("limit", req.Limit),
		slog.Uint64("total", env.Total),
		slog.Int("hits", len(env.Hits)),
	)
	return env, nil
}

func (x *Executor) normalize(req *Request) error {
	if !validator.IsIdentifier(req.Index) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid index name %q", req.Index))
	}
	if req.Type != "" && !validator.IsIdentifier(req.Type) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid type name %q", req.Type))
	}
	if err := query.Validate(req.Query); err != nil {
		return err
	}
	if req.Offset < 0 {
		return apperrors.InvalidInput("offset must not be negative")
	}
	if req.Limit < 0 {
		return apperrors.InvalidInput("limit must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = x.cfg.DefaultPageSize
	}
	// Written so that a huge offset cannot overflow past the check.
	if req.Limit > x.cfg.MaxResultWindow || req.Offset > x.cfg.MaxResultWindow-req.Limit {
		return apperrors.PageOutOfRange(req.Offset, req.Limit, x.cfg.MaxResultWindow)
	}
	if h := req.Highlight; h != nil {
		if len(h.Fields) == 0 {
			return apperrors.InvalidInput("highlight needs at least one field")
		}
		for _, f := range h.Fields {
			if !validator.IsFieldName(f) {
				return apperrors.InvalidInput(fmt.Sprintf("invalid highlight field %q", f))
			}
		}
	}
	return nil
}

// body renders the search request body. A type filter becomes a non-scoring
// term filter on the reserved type field.
func (x *Executor) body(req Request) map[string]any {
	q := req.Query.Source()
	if req.Type != "" {
		q = map[string]any{
			"bool": map[string]any{
				"must":   []any{q},
				"filter": []any{query.Term(domain.TypeField, req.Type).Source()},
			},
		}
	}

	body := map[string]any{
		"query":            q,
		"from":             req.Offset,
		"size":             req.Limit,
		"track_total_hits": true,
	}

	if h := req.Highlight; h != nil {
		pre, post := h.Tags()
		fields := make(map[string]any, len(h.Fields))
		for _, f := range h.Fields {
			fields[f] = map[string]any{
				"pre_tags":  []string{pre},
				"post_tags": []string{post},
			}
		}
		body["highlight"] = map[string]any{"fields": fields}
	}
	return body
}

func decodeResponse(raw []byte) (*Envelope, error) {
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.Backend("malformed_response", err.Error())
	}

	total, err := decodeTotal(resp.Hits.Total)
	if err != nil {
		return nil, apperrors.Backend("malformed_response", err.Error())
	}

	hits := resp.Hits.Hits
	if hits == nil {
		hits = []RawHit{}
	}
	return &Envelope{Total: total, TookMs: resp.Took, Hits: hits}, nil
}

// decodeTotal accepts both {"value": n, "relation": ...} and a bare number.
func decodeTotal(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '{' {
		var t struct {
			Value uint64 `json:"value"`
		}
		if err := json.Unmarshal(raw, &t); err != nil {
			return 0, fmt.Errorf("decode hits.total: %w", err)
		}
		return t.Value, nil
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode hits.total: %w", err)
	}
	return n, nil
}
