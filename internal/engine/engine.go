// Package engine defines the wire-level contract between the session and a
// search backend. Request and response bodies are Elasticsearch REST JSON so
// the in-memory engine and a real cluster are interchangeable.
package engine

import (
	"context"
	"io"
)

// Refresh policies accepted on writes.
const (
	RefreshNone    = ""
	RefreshTrue    = "true"
	RefreshWaitFor = "wait_for"
)

// ClusterInfo is the subset of the root endpoint response the core needs.
type ClusterInfo struct {
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

// Engine is a search backend reached through one session.
//
// Errors are *errors.AppError values: ErrNotFound for absent indices or
// documents, ErrTransport when the backend cannot be reached, ErrBackend when
// it refuses a request.
type Engine interface {
	io.Closer

	Info(ctx context.Context) (ClusterInfo, error)

	IndexExists(ctx context.Context, index string) (bool, error)
	// CreateIndex creates index with body {"mappings": {...}}.
	CreateIndex(ctx context.Context, index string, body []byte) error
	// GetMapping returns the index's mappings object ({"_meta":..., "properties":...}).
	GetMapping(ctx context.Context, index string) ([]byte, error)
	// PutMapping merges new properties into the index mapping and replaces _meta.
	PutMapping(ctx context.Context, index string, body []byte) error
	// DeleteIndex removes index. An absent index is not an error.
	DeleteIndex(ctx context.Context, index string) error
	Refresh(ctx context.Context, index string) error

	// IndexDocument stores body under id, replacing any previous version.
	// An empty id asks the backend to assign one. The stored id is returned.
	IndexDocument(ctx context.Context, index, id string, body []byte, refresh string) (string, error)
	// GetDocument returns the stored _source.
	GetDocument(ctx context.Context, index, id string) ([]byte, error)
	// DeleteDocument reports whether a document was removed.
	DeleteDocument(ctx context.Context, index, id string, refresh string) (bool, error)

	// Search runs a search request body and returns the raw response body.
	Search(ctx context.Context, index string, body []byte) ([]byte, error)
}
