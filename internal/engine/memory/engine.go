// Package memory is an embedded engine.Engine built on bleve. It speaks the
// same JSON bodies as Elasticsearch for the subset the core emits, so local
// runs and tests need no cluster.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"

	"github.com/utafrali/docsearch/internal/engine"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// Engine is an in-memory implementation of engine.Engine.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu          sync.RWMutex
	clusterName string
	indices     map[string]*memIndex
	closed      bool
	logger      *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// memIndex is one index: its mapping, the bleve index built from it, and the
// stored sources the bleve index was fed.
type memIndex struct {
	name    string
	mapping mappings
	bleve   bleve.Index
	sources map[string][]byte
}

// New creates an empty engine reporting clusterName from Info.
func New(clusterName string, logger *slog.Logger) *Engine {
	return &Engine{
		clusterName: clusterName,
		indices:     make(map[string]*memIndex),
		logger:      logger,
	}
}

// Info reports the configured cluster name.
func (e *Engine) Info(_ context.Context) (engine.ClusterInfo, error) {
	var info engine.ClusterInfo
	if err := e.checkOpen(); err != nil {
		return info, err
	}
	info.ClusterName = e.clusterName
	info.Version.Number = "memory"
	return info, nil
}

// IndexExists checks whether index exists.
func (e *Engine) IndexExists(_ context.Context, index string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false, closedErr("index exists")
	}
	_, ok := e.indices[index]
	return ok, nil
}

// CreateIndex creates index from a {"mappings": {...}} body.
func (e *Engine) CreateIndex(_ context.Context, index string, body []byte) error {
	var req struct {
		Mappings mappings `json:"mappings"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return apperrors.Backend("mapper_parsing_exception", err.Error())
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return closedErr("create index")
	}
	if _, ok := e.indices[index]; ok {
		return apperrors.Backend("resource_already_exists_exception", fmt.Sprintf("index [%s] already exists", index))
	}

	ix, err := newMemIndex(index, req.Mappings)
	if err != nil {
		return err
	}
	e.indices[index] = ix

	e.logger.Info("memory index created", "index", index, "fields", len(req.Mappings.Properties))
	return nil
}

// GetMapping returns the mappings object of index.
func (e *Engine) GetMapping(_ context.Context, index string) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ix, err := e.lookup("get mapping", index)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(ix.mapping)
	if err != nil {
		return nil, fmt.Errorf("memory get mapping: encode: %w", err)
	}
	return out, nil
}

// PutMapping merges properties into index. Changing an existing field is
// refused the way Elasticsearch refuses it. A present _meta replaces the old one.
func (e *Engine) PutMapping(_ context.Context, index string, body []byte) error {
	var update mappings
	if err := json.Unmarshal(body, &update); err != nil {
		return apperrors.Backend("mapper_parsing_exception", err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ix, err := e.lookup("put mapping", index)
	if err != nil {
		return err
	}

	merged, added, err := ix.mapping.merge(update)
	if err != nil {
		return err
	}
	if added == 0 {
		ix.mapping = merged
		return nil
	}

	rebuilt, err := newMemIndex(index, merged)
	if err != nil {
		return err
	}
	for id, src := range ix.sources {
		if err := rebuilt.put(id, src); err != nil {
			return err
		}
	}
	_ = ix.bleve.Close()
	e.indices[index] = rebuilt

	e.logger.Debug("memory mapping updated", "index", index, "added_fields", added, "documents", len(rebuilt.sources))
	return nil
}

// DeleteIndex removes index. An absent index is not an error.
func (e *Engine) DeleteIndex(_ context.Context, index string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return closedErr("delete index")
	}
	if ix, ok := e.indices[index]; ok {
		_ = ix.bleve.Close()
		delete(e.indices, index)
		e.logger.Info("memory index deleted", "index", index)
	}
	return nil
}

// Refresh is a no-op: writes are searchable as soon as they return.
func (e *Engine) Refresh(_ context.Context, index string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.lookup("refresh", index)
	return err
}

// IndexDocument stores body under id, creating the index on first write the
// way Elasticsearch auto-creates it. Unmapped fields are kept in the source
// but not searchable.
func (e *Engine) IndexDocument(_ context.Context, index, id string, body []byte, _ string) (string, error) {
	if !json.Valid(body) {
		return "", apperrors.Backend("document_parsing_exception", "body is not valid JSON")
	}
	if id == "" {
		id = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", closedErr("index")
	}
	ix, ok := e.indices[index]
	if !ok {
		var err error
		if ix, err = newMemIndex(index, mappings{}); err != nil {
			return "", err
		}
		e.indices[index] = ix
	}

	if err := ix.put(id, body); err != nil {
		return "", err
	}

	e.logger.Debug("indexed document", "index", index, "id", id)
	return id, nil
}

// GetDocument returns the stored source.
func (e *Engine) GetDocument(_ context.Context, index, id string) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ix, err := e.lookup("get", index)
	if err != nil {
		return nil, err
	}
	src, ok := ix.sources[id]
	if !ok {
		return nil, apperrors.NotFound("document", id)
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// DeleteDocument removes id. A missing document or index yields false and no error.
func (e *Engine) DeleteDocument(_ context.Context, index, id string, _ string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, closedErr("delete")
	}
	ix, ok := e.indices[index]
	if !ok {
		return false, nil
	}
	if _, ok := ix.sources[id]; !ok {
		return false, nil
	}
	if err := ix.bleve.Delete(id); err != nil {
		return false, fmt.Errorf("memory delete: %w", err)
	}
	delete(ix.sources, id)

	e.logger.Debug("deleted document", "index", index, "id", id)
	return true, nil
}

// Search runs a search body against index.
func (e *Engine) Search(ctx context.Context, index string, body []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ix, err := e.lookup("search", index)
	if err != nil {
		return nil, err
	}
	return ix.search(ctx, body)
}

// Close releases every index. Further calls fail with a transport error.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	names := make([]string, 0, len(e.indices))
	for name := range e.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_ = e.indices[name].bleve.Close()
	}
	e.indices = map[string]*memIndex{}
	return nil
}

func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return closedErr("info")
	}
	return nil
}

// lookup must be called with e.mu held.
func (e *Engine) lookup(op, index string) (*memIndex, error) {
	if e.closed {
		return nil, closedErr(op)
	}
	ix, ok := e.indices[index]
	if !ok {
		return nil, apperrors.NotFound("index", index)
	}
	return ix, nil
}

func closedErr(op string) error {
	return fmt.Errorf("memory %s: %w", op, apperrors.Transport(op, fmt.Errorf("engine closed")))
}

func newMemIndex(name string, m mappings) (*memIndex, error) {
	idx, err := bleve.NewMemOnly(m.bleveMapping())
	if err != nil {
		return nil, fmt.Errorf("memory create index %s: %w", name, err)
	}
	if m.Properties == nil {
		m.Properties = map[string]property{}
	}
	return &memIndex{
		name:    name,
		mapping: m,
		bleve:   idx,
		sources: make(map[string][]byte),
	}, nil
}

func (ix *memIndex) put(id string, src []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(src, &doc); err != nil {
		return apperrors.Backend("document_parsing_exception", err.Error())
	}
	if err := ix.mapping.check(doc); err != nil {
		return err
	}
	if err := ix.bleve.Index(id, doc); err != nil {
		return fmt.Errorf("memory index %s: %w", ix.name, err)
	}
	stored := make([]byte, len(src))
	copy(stored, src)
	ix.sources[id] = stored
	return nil
}
