// Package schema declares document types and keeps their mappings in step
// with the backend.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/engine"
	"github.com/utafrali/docsearch/internal/session"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// Registry declares TypeSchemas and resolves them for the document store and
// result projector. Declared schemas are persisted in the index mapping's
// _meta block, so a new process sees what an earlier one declared.
type Registry struct {
	session *session.Session
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.TypeSchema

	// declaring serializes Declare per index. The _meta block is rewritten
	// whole on every mapping update, so concurrent declares would drop types.
	declaring sync.Map // index -> *sync.Mutex
}

// NewRegistry creates a registry operating through s.
func NewRegistry(s *session.Session, logger *slog.Logger) *Registry {
	return &Registry{
		session: s,
		logger:  logger,
		cache:   make(map[string]domain.TypeSchema),
	}
}

// Declare provisions the index if needed and applies the mapping for the
// schema's type. Declaring an identical schema again is a no-op; a schema
// that differs from the registered one fails with ErrSchemaConflict.
func (r *Registry) Declare(ctx context.Context, s domain.TypeSchema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s = clone(s)

	unlock := r.lockIndex(s.Index)
	defer unlock()

	var created, applied bool
	err := r.session.Do(ctx, "declare_schema", func(ctx context.Context, e engine.Engine) error {
		exists, err := e.IndexExists(ctx, s.Index)
		if err != nil {
			return err
		}
		if !exists {
			err := createIndex(ctx, e, s)
			if err == nil {
				created = true
				return nil
			}
			// Another declarer may have created it in the meantime.
			if exists, _ = e.IndexExists(ctx, s.Index); !exists {
				return err
			}
		}

		applied, err = applyType(ctx, e, s)
		return err
	})
	if err != nil {
		return fmt.Errorf("declare schema %s: %w", s.Key(), err)
	}

	r.remember(s)

	switch {
	case created:
		r.logger.InfoContext(ctx, "index created for schema", slog.String("index", s.Index), slog.String("type", s.Type), slog.Int("fields", len(s.Fields)))
	case applied:
		r.logger.InfoContext(ctx, "schema mapping applied", slog.String("index", s.Index), slog.String("type", s.Type), slog.Int("fields", len(s.Fields)))
	default:
		r.logger.DebugContext(ctx, "schema already declared", slog.String("index", s.Index), slog.String("type", s.Type))
	}
	return nil
}

func createIndex(ctx context.Context, e engine.Engine, s domain.TypeSchema) error {
	meta, err := storedMapping{}.withType(s)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]storedMapping{
		"mappings": {Meta: meta, Properties: properties(s)},
	})
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	return e.CreateIndex(ctx, s.Index, body)
}

// applyType registers s on an existing index. It reports whether a mapping
// update was sent.
func applyType(ctx context.Context, e engine.Engine, s domain.TypeSchema) (bool, error) {
	current, err := readMapping(ctx, e, s.Index)
	if err != nil {
		return false, err
	}
	types, err := current.types()
	if err != nil {
		return false, err
	}

	if registered, ok := types[s.Type]; ok {
		if (domain.TypeSchema{Index: s.Index, Type: s.Type, Fields: registered.Fields}).Equal(s) {
			return false, nil
		}
		return false, apperrors.SchemaConflict(s.Index, s.Type, diff(registered.Fields, s.Fields))
	}

	// The type is new to this index. Fields it shares with other types
	// must be mapped identically, since an index has one mapping per name.
	wanted := properties(s)
	for name, p := range wanted {
		if existing, ok := current.Properties[name]; ok && !existing.sameAs(p) {
			return false, apperrors.SchemaConflict(s.Index, s.Type,
				fmt.Sprintf("field %q is already mapped as %s, wanted %s", name, existing, p))
		}
	}

	meta, err := current.withType(s)
	if err != nil {
		return false, err
	}
	body, err := json.Marshal(storedMapping{Meta: meta, Properties: wanted})
	if err != nil {
		return false, fmt.Errorf("encode mapping: %w", err)
	}
	if err := e.PutMapping(ctx, s.Index, body); err != nil {
		return false, err
	}
	if err := confirmType(ctx, e, s); err != nil {
		return false, err
	}
	return true, nil
}

// confirmType re-reads the mapping and checks that s survived the update.
// A writer in another process can replace _meta between our read and write.
func confirmType(ctx context.Context, e engine.Engine, s domain.TypeSchema) error {
	m, err := readMapping(ctx, e, s.Index)
	if err != nil {
		return err
	}
	types, err := m.types()
	if err != nil {
		return err
	}
	registered, ok := types[s.Type]
	if !ok {
		return apperrors.SchemaConflict(s.Index, s.Type, "type was overwritten by a concurrent mapping update")
	}
	if !(domain.TypeSchema{Index: s.Index, Type: s.Type, Fields: registered.Fields}).Equal(s) {
		return apperrors.SchemaConflict(s.Index, s.Type, diff(registered.Fields, s.Fields))
	}
	return nil
}

func readMapping(ctx context.Context, e engine.Engine, index string) (storedMapping, error) {
	raw, err := e.GetMapping(ctx, index)
	if err != nil {
		return storedMapping{}, err
	}
	var m storedMapping
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return storedMapping{}, fmt.Errorf("decode mapping of %s: %w", index, err)
		}
	}
	return m, nil
}

// Describe returns the schema registered for index and type, read from the
// backend. It fails with ErrNotFound when none is registered.
func (r *Registry) Describe(ctx context.Context, index, docType string) (domain.TypeSchema, error) {
	var out domain.TypeSchema
	err := r.session.Do(ctx, "describe_schema", func(ctx context.Context, e engine.Engine) error {
		m, err := readMapping(ctx, e, index)
		if err != nil {
			return err
		}
		types, err := m.types()
		if err != nil {
			return err
		}
		t, ok := types[docType]
		if !ok {
			return apperrors.NotFound("schema", domain.SchemaKey(index, docType))
		}
		out = domain.TypeSchema{Index: index, Type: docType, Fields: t.Fields}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.TypeSchema{}, apperrors.NotFound("schema", domain.SchemaKey(index, docType))
		}
		return domain.TypeSchema{}, fmt.Errorf("describe schema %s: %w", domain.SchemaKey(index, docType), err)
	}

	r.remember(out)
	return clone(out), nil
}

// Lookup is Describe behind an in-process cache. Registered schemas never
// change, so a cached entry stays valid. It fails with ErrSchemaMissing when
// the type was never declared.
func (r *Registry) Lookup(ctx context.Context, index, docType string) (domain.TypeSchema, error) {
	r.mu.RLock()
	s, ok := r.cache[domain.SchemaKey(index, docType)]
	r.mu.RUnlock()
	if ok {
		return clone(s), nil
	}

	s, err := r.Describe(ctx, index, docType)
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.TypeSchema{}, apperrors.SchemaMissing(index, docType)
	}
	return s, err
}

// Drop deletes index with every type declared on it and forgets the cached
// schemas. Dropping an absent index succeeds.
func (r *Registry) Drop(ctx context.Context, index string) error {
	unlock := r.lockIndex(index)
	defer unlock()

	err := r.session.Do(ctx, "drop_index", func(ctx context.Context, e engine.Engine) error {
		return e.DeleteIndex(ctx, index)
	})
	if err != nil {
		return fmt.Errorf("drop index %s: %w", index, err)
	}

	r.mu.Lock()
	for key, s := range r.cache {
		if s.Index == index {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "index dropped", slog.String("index", index))
	return nil
}

// Descriptor renders the typed mapping descriptor of s:
// {"<type>": {"properties": {"<field>": {"type", "store", "index", "analyzer"}}}}.
func Descriptor(s domain.TypeSchema) map[string]any {
	props := make(map[string]property, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Name] = propertyFor(f)
	}
	return map[string]any{
		s.Type: map[string]any{"properties": props},
	}
}

func (r *Registry) lockIndex(index string) func() {
	v, _ := r.declaring.LoadOrStore(index, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (r *Registry) remember(s domain.TypeSchema) {
	r.mu.Lock()
	r.cache[s.Key()] = clone(s)
	r.mu.Unlock()
}

func clone(s domain.TypeSchema) domain.TypeSchema {
	fields := make([]domain.FieldSpec, len(s.Fields))
	copy(fields, s.Fields)
	s.Fields = fields
	return s
}
