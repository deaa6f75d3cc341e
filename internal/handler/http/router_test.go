package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/internal/session"
	"github.com/utafrali/docsearch/pkg/health"
	"github.com/utafrali/docsearch/pkg/httputil"
	"github.com/utafrali/docsearch/pkg/logger"
	"github.com/utafrali/docsearch/pkg/middleware"
)

type response struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterWith(t, RouterConfig{})
}

func newTestRouterWith(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	sess, err := session.Open(context.Background(), session.Config{
		ClusterName: "my-elasticsearch",
		Endpoints:   []domain.Endpoint{{Host: "127.0.0.1", Port: 9200}},
		Engine:      session.EngineMemory,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	svc := service.NewSearchService(sess, service.Config{}, logger.Discard())
	hh := health.NewHandler()
	hh.Register("elasticsearch", svc.Ping)
	return NewRouter(svc, hh, cfg, logger.Discard())
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp), rec.Body.String())
	}
	return rec.Code, resp
}

const articleFields = `{"fields":[
	{"name":"id","kind":"integer","store":true,"index":true},
	{"name":"title","kind":"text","store":true,"index":true,"analyzer":"ik_smart"},
	{"name":"content","kind":"text","store":true,"index":true,"analyzer":"ik_smart"}
]}`

func declareArticle(t *testing.T, h http.Handler) {
	t.Helper()
	code, resp := do(t, h, http.MethodPut, "/api/v1/schemas/blog/article", articleFields)
	require.Equal(t, http.StatusOK, code, "%+v", resp.Error)
}

func TestSchema_DeclareAndDescribe(t *testing.T) {
	h := newTestRouter(t)
	declareArticle(t, h)

	code, resp := do(t, h, http.MethodGet, "/api/v1/schemas/blog/article", "")
	require.Equal(t, http.StatusOK, code)

	var ts domain.TypeSchema
	require.NoError(t, json.Unmarshal(resp.Data, &ts))
	assert.Equal(t, "blog", ts.Index)
	assert.Equal(t, "article", ts.Type)
	require.Len(t, ts.Fields, 3)
	assert.Equal(t, domain.KindInteger, ts.Fields[0].Kind)
	assert.Equal(t, "ik_smart", ts.Fields[1].Analyzer)
}

func TestSchema_Conflict(t *testing.T) {
	h := newTestRouter(t)
	declareArticle(t, h)

	code, resp := do(t, h, http.MethodPut, "/api/v1/schemas/blog/article", `{"fields":[{"name":"id","kind":"keyword"}]}`)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SCHEMA_CONFLICT", resp.Error.Code)
}

func TestSchema_Invalid(t *testing.T) {
	h := newTestRouter(t)

	tests := map[string]struct {
		path string
		body string
		code string
	}{
		"no fields":      {"/api/v1/schemas/blog/article", `{"fields":[]}`, "VALIDATION_ERROR"},
		"bad kind":       {"/api/v1/schemas/blog/article", `{"fields":[{"name":"x","kind":"date"}]}`, "VALIDATION_ERROR"},
		"malformed body": {"/api/v1/schemas/blog/article", `{"fields":`, "INVALID_INPUT"},
		"bad index":      {"/api/v1/schemas/Blog/article", articleFields, "INVALID_INPUT"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			code, resp := do(t, h, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestSchema_DescribeUnknown(t *testing.T) {
	code, resp := do(t, newTestRouter(t), http.MethodGet, "/api/v1/schemas/blog/article", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestSchema_Mapping(t *testing.T) {
	h := newTestRouter(t)
	declareArticle(t, h)

	code, resp := do(t, h, http.MethodGet, "/api/v1/schemas/blog/article/_mapping", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{
		"article": {
			"properties": {
				"id":      {"type": "long", "store": true, "index": true},
				"title":   {"type": "text", "store": true, "index": true, "analyzer": "ik_smart"},
				"content": {"type": "text", "store": true, "index": true, "analyzer": "ik_smart"}
			}
		}
	}`, string(resp.Data))

	code, resp = do(t, h, http.MethodGet, "/api/v1/schemas/blog/comment/_mapping", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestIndex_RefreshAndDrop(t *testing.T) {
	h := newTestRouter(t)

	code, resp := do(t, h, http.MethodPost, "/api/v1/indices/blog/_refresh", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	declareArticle(t, h)
	code, _ = do(t, h, http.MethodPut, "/api/v1/documents/blog/article/1", `{"id":1,"title":"t","content":"c"}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPost, "/api/v1/indices/blog/_refresh", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodDelete, "/api/v1/indices/blog", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/schemas/blog/article", "")
	assert.Equal(t, http.StatusNotFound, code, "types go with the index")

	code, _ = do(t, h, http.MethodDelete, "/api/v1/indices/blog", "")
	assert.Equal(t, http.StatusOK, code, "dropping an absent index succeeds")

	code, resp = do(t, h, http.MethodDelete, "/api/v1/indices/Blog", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestDocument_Lifecycle(t *testing.T) {
	h := newTestRouter(t)
	declareArticle(t, h)

	code, _ := do(t, h, http.MethodPut, "/api/v1/documents/blog/article/1", `{"id":1,"title":"search is fun","content":"elastic"}`)
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, h, http.MethodGet, "/api/v1/documents/blog/article/1", "")
	require.Equal(t, http.StatusOK, code)
	var doc domain.Document
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "1", doc.ID)
	assert.Equal(t, "search is fun", doc.Fields["title"])
	assert.Equal(t, float64(1), doc.Fields["id"])

	code, _ = do(t, h, http.MethodDelete, "/api/v1/documents/blog/article/1", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, http.MethodDelete, "/api/v1/documents/blog/article/1", "")
	assert.Equal(t, http.StatusOK, code, "deleting an absent id succeeds")

	code, resp = do(t, h, http.MethodGet, "/api/v1/documents/blog/article/1", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestDocument_CreateAssignsID(t *testing.T) {
	h := newTestRouter(t)
	declareArticle(t, h)

	code, resp := do(t, h, http.MethodPost, "/api/v1/documents/blog/article", `{"id":2,"title":"t","content":"c"}`)
	require.Equal(t, http.StatusCreated, code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.NotEmpty(t, out["id"])

	code, _ = do(t, h, http.MethodGet, "/api/v1/documents/blog/article/"+out["id"], "")
	assert.Equal(t, http.StatusOK, code)
}

func TestDocument_Errors(t *testing.T) {
	h := newTestRouter(t)

	code, resp := do(t, h, http.MethodPut, "/api/v1/documents/blog/article/1", `{"id":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "SCHEMA_MISSING", resp.Error.Code)

	declareArticle(t, h)
	code, resp = do(t, h, http.MethodPut, "/api/v1/documents/blog/article/1", `{"id":"one","title":"t","content":"c"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestDocument_RejectsNonJSON(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/documents/blog/article/1", strings.NewReader("id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestDocument_RejectsOversizedBody(t *testing.T) {
	h := newTestRouter(t)
	declareArticle(t, h)

	body := `{"id":1,"title":"` + strings.Repeat("x", maxBodyBytes) + `","content":"c"}`
	code, resp := do(t, h, http.MethodPut, "/api/v1/documents/blog/article/1", body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestDocument_BulkAndList(t *testing.T) {
	h := newTestRouter(t)
	declareArticle(t, h)

	body := `{"documents":[
		{"id":"1","fields":{"id":1,"title":"one","content":"a"}},
		{"id":"2","fields":{"id":2,"title":"two"}},
		{"id":"3","fields":{"id":3,"title":"three","content":"c"}}
	]}`
	code, resp := do(t, h, http.MethodPost, "/api/v1/documents/blog/article/_bulk", body)
	require.Equal(t, http.StatusOK, code)

	var bulk BulkResponse
	require.NoError(t, json.Unmarshal(resp.Data, &bulk))
	assert.Equal(t, 2, bulk.Indexed)
	assert.Equal(t, 1, bulk.Failed)
	require.Len(t, bulk.Items, 3)
	assert.Equal(t, "failed", bulk.Items[1].Status)
	assert.Equal(t, "INVALID_INPUT", bulk.Items[1].Error.Code)
	assert.Equal(t, "2", bulk.Items[1].ID)

	code, resp = do(t, h, http.MethodGet, "/api/v1/documents/blog/article?offset=1&limit=5", "")
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Data    []domain.Document `json:"data"`
		Total   uint64            `json:"total"`
		HasPrev bool              `json:"has_prev"`
		HasNext bool              `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, uint64(2), page.Total)
	assert.Len(t, page.Data, 1)
	assert.True(t, page.HasPrev)
	assert.False(t, page.HasNext)
}

func TestDocument_ListBadParams(t *testing.T) {
	code, resp := do(t, newTestRouter(t), http.MethodGet, "/api/v1/documents/blog/article?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

func TestBulk_Validation(t *testing.T) {
	code, resp := do(t, newTestRouter(t), http.MethodPost, "/api/v1/documents/blog/article/_bulk", `{"documents":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t)

	code, _ := do(t, h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var ready health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, health.StatusUp, ready.Checks["elasticsearch"].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodGet, "/health/live", "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docsearch_http_requests_total")
}

func TestCorrelationIDEchoed(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/schemas/blog/article", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc-123", resp.Error.RequestID)
}

func TestRateLimit_OnlyAPIRoutes(t *testing.T) {
	h := newTestRouterWith(t, RouterConfig{
		RateLimit: middleware.RateLimitConfig{RPS: 0.001, Burst: 2},
	})

	for i := 0; i < 2; i++ {
		code, _ := do(t, h, http.MethodGet, "/api/v1/schemas/blog/article", "")
		assert.Equal(t, http.StatusNotFound, code)
	}
	code, resp := do(t, h, http.MethodGet, "/api/v1/schemas/blog/article", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)

	code, _ = do(t, h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, code)
}
