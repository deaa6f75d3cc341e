// Package client calls a running docsearch server over its HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/pkg/httpclient"
)

// SearchRequest is the body of POST /api/v1/search. A nil Query matches
// every document.
type SearchRequest struct {
	Index     string            `json:"index"`
	Type      string            `json:"type,omitempty"`
	Query     json.RawMessage   `json:"query,omitempty"`
	Offset    int               `json:"offset,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Highlight *domain.Highlight `json:"highlight,omitempty"`
}

// Client is a docsearch API client. Errors returned by the server match
// the pkg/errors sentinels with errors.Is.
type Client struct {
	http    *httpclient.Client
	baseURL string
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, cfg httpclient.Config) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	return &Client{http: httpclient.New(cfg), baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (c *Client) url(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/api/v1/" + strings.Join(escaped, "/")
}

// DeclareSchema declares a document type.
func (c *Client) DeclareSchema(ctx context.Context, ts domain.TypeSchema) error {
	body := struct {
		Fields []domain.FieldSpec `json:"fields"`
	}{Fields: ts.Fields}
	if err := c.http.DoJSON(ctx, http.MethodPut, c.url("schemas", ts.Index, ts.Type), body, nil); err != nil {
		return fmt.Errorf("declare schema: %w", err)
	}
	return nil
}

// DescribeSchema returns the schema the cluster holds for a type.
func (c *Client) DescribeSchema(ctx context.Context, index, docType string) (domain.TypeSchema, error) {
	var ts domain.TypeSchema
	if err := c.http.DoJSON(ctx, http.MethodGet, c.url("schemas", index, docType), nil, &ts); err != nil {
		return domain.TypeSchema{}, fmt.Errorf("describe schema: %w", err)
	}
	return ts, nil
}

// DescribeMapping returns the typed mapping descriptor of a declared type.
func (c *Client) DescribeMapping(ctx context.Context, index, docType string) (map[string]any, error) {
	var desc map[string]any
	if err := c.http.DoJSON(ctx, http.MethodGet, c.url("schemas", index, docType, "_mapping"), nil, &desc); err != nil {
		return nil, fmt.Errorf("describe mapping: %w", err)
	}
	return desc, nil
}

// DropIndex deletes an index with its documents and declared types.
func (c *Client) DropIndex(ctx context.Context, index string) error {
	if err := c.http.DoJSON(ctx, http.MethodDelete, c.url("indices", index), nil, nil); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// RefreshIndex makes the writes acknowledged so far visible to search.
func (c *Client) RefreshIndex(ctx context.Context, index string) error {
	if err := c.http.DoJSON(ctx, http.MethodPost, c.url("indices", index, "_refresh"), nil, nil); err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	return nil
}

// Search runs a search on the server.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*domain.SearchResult, error) {
	var res domain.SearchResult
	if err := c.http.DoJSON(ctx, http.MethodPost, c.url("search"), req, &res); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return &res, nil
}

// Ping checks the server's readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/health/ready")
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: server not ready (status %d)", resp.StatusCode)
	}
	return nil
}
