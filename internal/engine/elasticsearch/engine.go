package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/docsearch/internal/engine"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// Config holds what the client needs to reach a cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	// Transport carries every request. The session passes its breaker-wrapped
	// transport here; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// Engine is an Elasticsearch-backed implementation of engine.Engine.
type Engine struct {
	client    *elasticsearch.Client
	transport http.RoundTripper
	logger    *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

type esIndexResponse struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

type esGetResponse struct {
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

// New creates a client for the given addresses. No connection is made until
// the first request, and the client never retries on its own.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if len(cfg.Addresses) == 0 {
		return nil, apperrors.Configuration("elasticsearch: no addresses")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    cfg.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Configuration(err.Error()), "elasticsearch: create client")
	}

	return &Engine{
		client:    client,
		transport: cfg.Transport,
		logger:    logger,
	}, nil
}

// Info returns the cluster identity from the root endpoint.
func (e *Engine) Info(ctx context.Context) (engine.ClusterInfo, error) {
	var info engine.ClusterInfo

	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return info, transportErr("info", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return info, responseErr("info", res)
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("elasticsearch info: decode response: %w", err)
	}
	return info, nil
}

// IndexExists checks whether index exists.
func (e *Engine) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := e.client.Indices.Exists(
		[]string{index},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, transportErr("index exists", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusOK:
		return true, nil
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, responseErr("index exists", res)
	}
}

// CreateIndex creates index with the given settings and mappings body.
func (e *Engine) CreateIndex(ctx context.Context, index string, body []byte) error {
	res, err := e.client.Indices.Create(
		index,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return transportErr("create index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseErr("create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", index)
	return nil
}

// GetMapping returns the mappings object of index.
func (e *Engine) GetMapping(ctx context.Context, index string) ([]byte, error) {
	res, err := e.client.Indices.GetMapping(
		e.client.Indices.GetMapping.WithIndex(index),
		e.client.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return nil, transportErr("get mapping", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("index", index)
	}
	if res.IsError() {
		return nil, responseErr("get mapping", res)
	}

	var byIndex map[string]struct {
		Mappings json.RawMessage `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&byIndex); err != nil {
		return nil, fmt.Errorf("elasticsearch get mapping: decode response: %w", err)
	}
	m, ok := byIndex[index]
	if !ok {
		return nil, apperrors.NotFound("index", index)
	}
	return m.Mappings, nil
}

// PutMapping adds properties to index and replaces its _meta block.
func (e *Engine) PutMapping(ctx context.Context, index string, body []byte) error {
	res, err := e.client.Indices.PutMapping(
		[]string{index},
		bytes.NewReader(body),
		e.client.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return transportErr("put mapping", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseErr("put mapping", res)
	}

	e.logger.Debug("elasticsearch mapping updated", "index", index)
	return nil
}

// DeleteIndex removes index. A 404 response is treated as success.
func (e *Engine) DeleteIndex(ctx context.Context, index string) error {
	res, err := e.client.Indices.Delete(
		[]string{index},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return transportErr("delete index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseErr("delete index", res)
	}

	e.logger.Info("elasticsearch index deleted", "index", index)
	return nil
}

// Refresh makes recent writes to index visible to search.
func (e *Engine) Refresh(ctx context.Context, index string) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(index),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return transportErr("refresh", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return apperrors.NotFound("index", index)
	}
	if res.IsError() {
		return responseErr("refresh", res)
	}
	return nil
}

// IndexDocument stores a document, letting the cluster assign the id when id is empty.
func (e *Engine) IndexDocument(ctx context.Context, index, id string, body []byte, refresh string) (string, error) {
	opts := []func(*esapi.IndexRequest){
		e.client.Index.WithContext(ctx),
	}
	if id != "" {
		opts = append(opts, e.client.Index.WithDocumentID(id))
	}
	if refresh != engine.RefreshNone {
		opts = append(opts, e.client.Index.WithRefresh(refresh))
	}

	res, err := e.client.Index(index, bytes.NewReader(body), opts...)
	if err != nil {
		return "", transportErr("index", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return "", responseErr("index", res)
	}

	var out esIndexResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("elasticsearch index: decode response: %w", err)
	}

	e.logger.Debug("indexed document", "index", index, "id", out.ID, "result", out.Result)
	return out.ID, nil
}

// GetDocument fetches the _source of one document.
func (e *Engine) GetDocument(ctx context.Context, index, id string) ([]byte, error) {
	res, err := e.client.Get(index, id, e.client.Get.WithContext(ctx))
	if err != nil {
		return nil, transportErr("get", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("document", id)
	}
	if res.IsError() {
		return nil, responseErr("get", res)
	}

	var out esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	if !out.Found {
		return nil, apperrors.NotFound("document", id)
	}
	return out.Source, nil
}

// DeleteDocument removes one document. A missing document yields false and no error.
func (e *Engine) DeleteDocument(ctx context.Context, index, id string, refresh string) (bool, error) {
	opts := []func(*esapi.DeleteRequest){
		e.client.Delete.WithContext(ctx),
	}
	if refresh != engine.RefreshNone {
		opts = append(opts, e.client.Delete.WithRefresh(refresh))
	}

	res, err := e.client.Delete(index, id, opts...)
	if err != nil {
		return false, transportErr("delete", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, responseErr("delete", res)
	}

	e.logger.Debug("deleted document", "index", index, "id", id)
	return true, nil
}

// Search posts body to the index's _search endpoint and returns the raw response.
func (e *Engine) Search(ctx context.Context, index string, body []byte) ([]byte, error) {
	res, err := e.client.Search(
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, transportErr("search", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("index", index)
	}
	if res.IsError() {
		return nil, responseErr("search", res)
	}

	out, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transportErr("search", err)
	}
	return out, nil
}

// Close drops idle pooled connections.
func (e *Engine) Close() error {
	t := e.transport
	if t == nil {
		t = http.DefaultTransport
	}
	if c, ok := t.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	return nil
}

func transportErr(op string, err error) error {
	return fmt.Errorf("elasticsearch %s: %w", op, apperrors.Transport(op, err))
}

// responseErr classifies a non-2xx response. Overload and gateway statuses
// count as transport failures; anything else is the cluster refusing the request.
func responseErr(op string, res *esapi.Response) error {
	switch res.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("elasticsearch %s: %w", op, apperrors.Transport(op, fmt.Errorf("unexpected status %s", res.Status())))
	}

	body, _ := io.ReadAll(res.Body)
	var errResp esErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("elasticsearch %s: %w", op, apperrors.Backend(errResp.Error.Type, errResp.Error.Reason))
	}
	return fmt.Errorf("elasticsearch %s: %w", op, apperrors.Backend("unexpected status "+res.Status(), string(body)))
}
