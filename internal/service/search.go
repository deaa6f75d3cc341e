package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/docsearch/internal/document"
	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/query"
	"github.com/utafrali/docsearch/internal/schema"
	"github.com/utafrali/docsearch/internal/search"
	"github.com/utafrali/docsearch/internal/session"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/pagination"
	"github.com/utafrali/docsearch/pkg/validator"
)

// Config holds the options of the components the service builds.
type Config struct {
	Search   search.Config
	Document document.Config
}

// SearchService exposes schema, document and search operations over one
// session to the HTTP API, the CLI and the event consumer.
type SearchService struct {
	session   *session.Session
	schemas   *schema.Registry
	store     *document.Store
	executor  *search.Executor
	projector *search.Projector
	logger    *slog.Logger
}

// NewSearchService creates a new search service bound to sess.
func NewSearchService(sess *session.Session, cfg Config, logger *slog.Logger) *SearchService {
	schemas := schema.NewRegistry(sess, logger)
	executor := search.NewExecutor(sess, cfg.Search, logger)
	projector := search.NewProjector(schemas, logger)

	return &SearchService{
		session:   sess,
		schemas:   schemas,
		store:     document.NewStore(sess, schemas, executor, projector, cfg.Document, logger),
		executor:  executor,
		projector: projector,
		logger:    logger,
	}
}

// SearchInput holds the parameters of a search.
type SearchInput struct {
	Index     string
	Type      string
	Query     query.Query
	Offset    int
	Limit     int
	Highlight *domain.Highlight
}

// DeclareSchema declares a document type.
func (s *SearchService) DeclareSchema(ctx context.Context, ts domain.TypeSchema) error {
	if err := s.schemas.Declare(ctx, ts); err != nil {
		return fmt.Errorf("declare schema: %w", err)
	}
	s.logger.InfoContext(ctx, "schema declared",
		slog.String("index", ts.Index),
		slog.String("type", ts.Type),
		slog.Int("fields", len(ts.Fields)),
	)
	return nil
}

// DescribeSchema returns the schema the cluster holds for a type.
func (s *SearchService) DescribeSchema(ctx context.Context, index, docType string) (domain.TypeSchema, error) {
	ts, err := s.schemas.Describe(ctx, index, docType)
	if err != nil {
		return domain.TypeSchema{}, fmt.Errorf("describe schema: %w", err)
	}
	return ts, nil
}

// DescribeMapping returns the typed mapping descriptor of a declared type.
func (s *SearchService) DescribeMapping(ctx context.Context, index, docType string) (map[string]any, error) {
	ts, err := s.DescribeSchema(ctx, index, docType)
	if err != nil {
		return nil, err
	}
	return schema.Descriptor(ts), nil
}

// DropIndex deletes an index with its documents and declared types.
func (s *SearchService) DropIndex(ctx context.Context, index string) error {
	if !validator.IsIdentifier(index) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid index name %q", index))
	}
	if err := s.schemas.Drop(ctx, index); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// RefreshIndex makes every write acknowledged so far visible to search.
func (s *SearchService) RefreshIndex(ctx context.Context, index string) error {
	if err := s.store.Refresh(ctx, index); err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	s.logger.DebugContext(ctx, "index refreshed", slog.String("index", index))
	return nil
}

// PutDocument creates or replaces a document and returns its id.
func (s *SearchService) PutDocument(ctx context.Context, doc domain.Document) (string, error) {
	id, err := s.store.Put(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("put document: %w", err)
	}
	s.logger.InfoContext(ctx, "document indexed",
		slog.String("index", doc.Index),
		slog.String("type", doc.Type),
		slog.String("id", id),
	)
	return id, nil
}

// GetDocument returns a document by id.
func (s *SearchService) GetDocument(ctx context.Context, index, docType, id string) (domain.Document, error) {
	doc, err := s.store.Get(ctx, index, docType, id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes a document. Deleting an absent id succeeds.
func (s *SearchService) DeleteDocument(ctx context.Context, index, docType, id string) error {
	if err := s.store.Delete(ctx, index, docType, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.logger.InfoContext(ctx, "document deleted",
		slog.String("index", index),
		slog.String("type", docType),
		slog.String("id", id),
	)
	return nil
}

// PutDocuments puts each document in order and reports one outcome per input.
func (s *SearchService) PutDocuments(ctx context.Context, docs []domain.Document) []domain.Outcome {
	return s.store.PutMany(ctx, docs)
}

// ListDocuments returns one page of the documents of a type.
func (s *SearchService) ListDocuments(ctx context.Context, index, docType string, page pagination.Params) (*domain.SearchResult, error) {
	res, err := s.store.List(ctx, index, docType, page)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return res, nil
}

// Search runs a query and projects the hits onto their declared schemas.
func (s *SearchService) Search(ctx context.Context, in SearchInput) (*domain.SearchResult, error) {
	env, err := s.executor.Execute(ctx, search.Request{
		Query:     in.Query,
		Index:     in.Index,
		Type:      in.Type,
		Offset:    in.Offset,
		Limit:     in.Limit,
		Highlight: in.Highlight,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	res, err := s.projector.Project(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	s.logger.InfoContext(ctx, "search executed",
		slog.String("index", in.Index),
		slog.String("type", in.Type),
		slog.Uint64("total", res.Total),
		slog.Int("hits", len(res.Hits)),
	)
	return res, nil
}

// Ping checks that the cluster answers and is the one configured.
func (s *SearchService) Ping(ctx context.Context) error {
	return s.session.Ping(ctx)
}
