// Package document writes and reads documents of declared types.
//
// Writes are visible to search only after the backend refreshes the index.
// Config.Refresh can ask the backend to refresh on each write; by default it
// does not, and a search right after a put may not see the document.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/engine"
	"github.com/utafrali/docsearch/internal/query"
	"github.com/utafrali/docsearch/internal/schema"
	"github.com/utafrali/docsearch/internal/search"
	"github.com/utafrali/docsearch/internal/session"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/pagination"
	"github.com/utafrali/docsearch/pkg/validator"
)

// maxIDLength is the longest document id Elasticsearch accepts, in bytes.
const maxIDLength = 512

// Config holds write options.
type Config struct {
	// Refresh is passed on every write: "", "true" or "wait_for".
	Refresh string `validate:"omitempty,oneof=true wait_for"`
}

// Store performs identity-keyed writes and reads against declared types.
// Concurrent puts to one id race at the backend and the last one wins.
type Store struct {
	session   *session.Session
	schemas   *schema.Registry
	executor  *search.Executor
	projector *search.Projector
	refresh   string
	logger    *slog.Logger
}

// NewStore creates a store.
func NewStore(s *session.Session, schemas *schema.Registry, executor *search.Executor, projector *search.Projector, cfg Config, logger *slog.Logger) *Store {
	return &Store{
		session:   s,
		schemas:   schemas,
		executor:  executor,
		projector: projector,
		refresh:   cfg.Refresh,
		logger:    logger,
	}
}

// Put creates or fully replaces doc and returns its id. An empty ID lets the
// backend assign one. The type must have a declared schema.
func (st *Store) Put(ctx context.Context, doc domain.Document) (string, error) {
	if err := checkNames(doc.Index, doc.Type); err != nil {
		return "", err
	}
	if len(doc.ID) > maxIDLength {
		return "", apperrors.InvalidInput(fmt.Sprintf("id longer than %d bytes", maxIDLength))
	}

	s, err := st.schemas.Lookup(ctx, doc.Index, doc.Type)
	if err != nil {
		return "", err
	}
	fields, err := schema.Encode(s, doc.Fields)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	var id string
	err = st.session.Do(ctx, "put_document", func(ctx context.Context, e engine.Engine) error {
		var err error
		id, err = e.IndexDocument(ctx, doc.Index, doc.ID, body, st.refresh)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", s.Key(), doc.ID, err)
	}

	st.logger.DebugContext(ctx, "document stored",
		slog.String("index", doc.Index),
		slog.String("type", doc.Type),
		slog.String("id", id),
	)
	return id, nil
}

// Get returns the document stored under id. A document of another type
// under the same id is reported as not found.
func (st *Store) Get(ctx context.Context, index, docType, id string) (domain.Document, error) {
	if err := checkNames(index, docType); err != nil {
		return domain.Document{}, err
	}
	if id == "" {
		return domain.Document{}, apperrors.InvalidInput("id is required")
	}

	s, err := st.schemas.Lookup(ctx, index, docType)
	if err != nil {
		return domain.Document{}, err
	}

	var src []byte
	err = st.session.Do(ctx, "get_document", func(ctx context.Context, e engine.Engine) error {
		var err error
		src, err = e.GetDocument(ctx, index, id)
		return err
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.Document{}, apperrors.NotFound("document", id)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("get %s/%s: %w", s.Key(), id, err)
	}

	if stored, err := schema.TypeOf(src); err != nil || stored != docType {
		return domain.Document{}, apperrors.NotFound("document", id)
	}
	fields, err := schema.Decode(s, id, src)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: id, Index: index, Type: docType, Fields: fields}, nil
}

// Delete removes the document of docType stored under id. Deleting an absent
// id succeeds, and a document of another type under that id is left alone.
func (st *Store) Delete(ctx context.Context, index, docType, id string) error {
	if err := checkNames(index, docType); err != nil {
		return err
	}
	if id == "" {
		return apperrors.InvalidInput("id is required")
	}

	var deleted bool
	err := st.session.Do(ctx, "delete_document", func(ctx context.Context, e engine.Engine) error {
		src, err := e.GetDocument(ctx, index, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if stored, err := schema.TypeOf(src); err != nil || stored != docType {
			return nil
		}
		deleted, err = e.DeleteDocument(ctx, index, id, st.refresh)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", domain.SchemaKey(index, docType), id, err)
	}

	st.logger.DebugContext(ctx, "document delete",
		slog.String("index", index),
		slog.String("type", docType),
		slog.String("id", id),
		slog.Bool("existed", deleted),
	)
	return nil
}

// PutMany puts each document in order, one request each. A failed item does
// not stop the batch; every input gets an Outcome at its position.
func (st *Store) PutMany(ctx context.Context, docs []domain.Document) []domain.Outcome {
	outcomes := make([]domain.Outcome, len(docs))
	failed := 0
	for i, doc := range docs {
		id, err := st.Put(ctx, doc)
		if id == "" {
			id = doc.ID
		}
		outcomes[i] = domain.Outcome{Position: i, ID: id, Err: err}
		if err != nil {
			failed++
			st.logger.WarnContext(ctx, "bulk item failed",
				slog.Int("position", i),
				slog.String("id", doc.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	st.logger.InfoContext(ctx, "bulk put finished",
		slog.Int("items", len(docs)),
		slog.Int("failed", failed),
	)
	return outcomes
}

// List returns one page of the documents of a type, in index order.
func (st *Store) List(ctx context.Context, index, docType string, page pagination.Params) (*domain.SearchResult, error) {
	if err := checkNames(index, docType); err != nil {
		return nil, err
	}
	if _, err := st.schemas.Lookup(ctx, index, docType); err != nil {
		return nil, err
	}

	env, err := st.executor.Execute(ctx, search.Request{
		Query:  query.MatchAll(),
		Index:  index,
		Type:   docType,
		Offset: page.Offset,
		Limit:  page.Limit,
	})
	if err != nil {
		return nil, err
	}
	return st.projector.Project(ctx, env)
}

// Refresh makes the writes acknowledged so far on index visible to search.
// It fails with ErrNotFound when the index does not exist.
func (st *Store) Refresh(ctx context.Context, index string) error {
	if !validator.IsIdentifier(index) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid index name %q", index))
	}
	err := st.session.Do(ctx, "refresh_index", func(ctx context.Context, e engine.Engine) error {
		return e.Refresh(ctx, index)
	})
	if err != nil {
		return fmt.Errorf("refresh %s: %w", index, err)
	}
	return nil
}

func checkNames(index, docType string) error {
	if !validator.IsIdentifier(index) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid index name %q", index))
	}
	if !validator.IsIdentifier(docType) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid type name %q", docType))
	}
	return nil
}
