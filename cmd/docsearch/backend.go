package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/utafrali/docsearch/internal/client"
	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/query"
	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/pkg/httpclient"
)

// backend is what the schema and search commands run against: a session
// opened by the command, or a docsearch server given with --server.
type backend interface {
	DeclareSchema(ctx context.Context, ts domain.TypeSchema) error
	DescribeSchema(ctx context.Context, index, docType string) (domain.TypeSchema, error)
	DescribeMapping(ctx context.Context, index, docType string) (map[string]any, error)
	DropIndex(ctx context.Context, index string) error
	RefreshIndex(ctx context.Context, index string) error
	Search(ctx context.Context, req client.SearchRequest) (*domain.SearchResult, error)
	Close() error
}

type localBackend struct {
	svc     *service.SearchService
	closeFn func() error
}

func (b *localBackend) DeclareSchema(ctx context.Context, ts domain.TypeSchema) error {
	return b.svc.DeclareSchema(ctx, ts)
}

func (b *localBackend) DescribeSchema(ctx context.Context, index, docType string) (domain.TypeSchema, error) {
	return b.svc.DescribeSchema(ctx, index, docType)
}

func (b *localBackend) DescribeMapping(ctx context.Context, index, docType string) (map[string]any, error) {
	return b.svc.DescribeMapping(ctx, index, docType)
}

func (b *localBackend) DropIndex(ctx context.Context, index string) error {
	return b.svc.DropIndex(ctx, index)
}

func (b *localBackend) RefreshIndex(ctx context.Context, index string) error {
	return b.svc.RefreshIndex(ctx, index)
}

func (b *localBackend) Search(ctx context.Context, req client.SearchRequest) (*domain.SearchResult, error) {
	var q query.Query = query.MatchAll()
	if len(req.Query) > 0 {
		var err error
		if q, err = query.Decode(req.Query); err != nil {
			return nil, err
		}
	}
	return b.svc.Search(ctx, service.SearchInput{
		Index:     req.Index,
		Type:      req.Type,
		Query:     q,
		Offset:    req.Offset,
		Limit:     req.Limit,
		Highlight: req.Highlight,
	})
}

func (b *localBackend) Close() error { return b.closeFn() }

type remoteBackend struct {
	*client.Client
}

func (remoteBackend) Close() error { return nil }

func (o *rootOptions) backend(cmd *cobra.Command) (backend, error) {
	if o.server != "" {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = 30 * time.Second
		c, err := client.New(o.server, cfg)
		if err != nil {
			return nil, err
		}
		return remoteBackend{c}, nil
	}

	cfg, log, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	svc, closeFn, err := openService(cmd.Context(), cfg, log)
	if err != nil {
		return nil, err
	}
	return &localBackend{svc: svc, closeFn: closeFn}, nil
}
