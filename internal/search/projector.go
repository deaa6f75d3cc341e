package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/schema"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// SchemaSource resolves the declared schema of a type. *schema.Registry
// satisfies it.
type SchemaSource interface {
	Lookup(ctx context.Context, index, docType string) (domain.TypeSchema, error)
}

// Projector turns an Envelope into typed hits using the declared schemas.
type Projector struct {
	schemas SchemaSource
	logger  *slog.Logger
}

// NewProjector creates a projector.
func NewProjector(schemas SchemaSource, logger *slog.Logger) *Projector {
	return &Projector{schemas: schemas, logger: logger}
}

// Project decodes every hit against the schema of its type. Hit order and
// the total are kept as the backend reported them. When the search asked
// for highlights, every requested field is a key of every hit's highlight
// map, holding an empty slice when that hit had no fragment.
func (p *Projector) Project(ctx context.Context, env *Envelope) (*domain.SearchResult, error) {
	out := &domain.SearchResult{
		Total:  env.Total,
		TookMs: env.TookMs,
		Hits:   make([]domain.Hit, 0, len(env.Hits)),
	}

	for _, raw := range env.Hits {
		doc, err := p.document(ctx, env, raw)
		if err != nil {
			return nil, err
		}

		hit := domain.Hit{ID: raw.ID, Score: raw.Score, Document: doc}
		if env.Highlight != nil {
			hit.Highlights = make(map[string][]string, len(env.Highlight.Fields))
			for _, f := range env.Highlight.Fields {
				frags := raw.Highlight[f]
				if frags == nil {
					frags = []string{}
				}
				hit.Highlights[f] = frags
			}
		}
		out.Hits = append(out.Hits, hit)
	}

	p.logger.DebugContext(ctx, "search result projected",
		slog.String("index", env.Index),
		slog.Uint64("total", out.Total),
		slog.Int("hits", len(out.Hits)),
	)
	return out, nil
}

func (p *Projector) document(ctx context.Context, env *Envelope, raw RawHit) (domain.Document, error) {
	index := raw.Index
	if index == "" {
		index = env.Index
	}

	docType, err := schema.TypeOf(raw.Source)
	if err != nil {
		return domain.Document{}, apperrors.Deserialization(raw.ID, err.Error())
	}
	if env.Type != "" && docType != env.Type {
		return domain.Document{}, apperrors.Deserialization(raw.ID, fmt.Sprintf("type %q returned for a search filtered on %q", docType, env.Type))
	}

	s, err := p.schemas.Lookup(ctx, index, docType)
	if err != nil {
		if errors.Is(err, apperrors.ErrSchemaMissing) {
			return domain.Document{}, apperrors.Deserialization(raw.ID, fmt.Sprintf("no schema declared for %s", domain.SchemaKey(index, docType)))
		}
		return domain.Document{}, err
	}

	fields, err := schema.Decode(s, raw.ID, raw.Source)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: raw.ID, Index: index, Type: docType, Fields: fields}, nil
}
