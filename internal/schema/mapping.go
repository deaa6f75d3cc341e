package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/utafrali/docsearch/internal/domain"
)

// metaKey is the key under the mapping's _meta block that holds declared schemas.
const metaKey = "docsearch"

// property is one entry of a mapping's properties block.
type property struct {
	Type     string `json:"type"`
	Store    *bool  `json:"store,omitempty"`
	Index    *bool  `json:"index,omitempty"`
	Analyzer string `json:"analyzer,omitempty"`
}

// storedMapping is the mappings object as returned by GetMapping. Unknown
// _meta keys are kept so a put never drops another owner's metadata.
type storedMapping struct {
	Meta       map[string]json.RawMessage `json:"_meta,omitempty"`
	Properties map[string]property        `json:"properties,omitempty"`
}

type docsearchMeta struct {
	Types map[string]typeMeta `json:"types"`
}

type typeMeta struct {
	Fields []domain.FieldSpec `json:"fields"`
}

func propertyFor(f domain.FieldSpec) property {
	store, index := f.Store, f.Index
	return property{
		Type:     f.Kind.WireType(),
		Store:    &store,
		Index:    &index,
		Analyzer: f.Analyzer,
	}
}

func typeFieldProperty() property {
	return property{Type: "keyword"}
}

// properties renders the schema's fields plus the reserved type field.
func properties(s domain.TypeSchema) map[string]property {
	out := make(map[string]property, len(s.Fields)+1)
	for _, f := range s.Fields {
		out[f.Name] = propertyFor(f)
	}
	out[domain.TypeField] = typeFieldProperty()
	return out
}

// normalized fills in backend defaults so a mapping read back from the
// cluster compares equal to the one that was sent.
func (p property) normalized() property {
	f, t := false, true
	if p.Store == nil {
		p.Store = &f
	}
	if p.Index == nil {
		p.Index = &t
	}
	if p.Type == "text" && p.Analyzer == "" {
		p.Analyzer = "standard"
	}
	return p
}

func (p property) sameAs(o property) bool {
	a, b := p.normalized(), o.normalized()
	return a.Type == b.Type && *a.Store == *b.Store && *a.Index == *b.Index && a.Analyzer == b.Analyzer
}

func (p property) String() string {
	n := p.normalized()
	s := fmt.Sprintf("%s(store=%t,index=%t", n.Type, *n.Store, *n.Index)
	if n.Type == "text" {
		s += ",analyzer=" + n.Analyzer
	}
	return s + ")"
}

// types returns the declared schemas recorded in the mapping.
func (m storedMapping) types() (map[string]typeMeta, error) {
	raw, ok := m.Meta[metaKey]
	if !ok {
		return map[string]typeMeta{}, nil
	}
	var meta docsearchMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode _meta.%s: %w", metaKey, err)
	}
	if meta.Types == nil {
		meta.Types = map[string]typeMeta{}
	}
	return meta.Types, nil
}

// withType returns the _meta block with s recorded next to the existing types.
func (m storedMapping) withType(s domain.TypeSchema) (map[string]json.RawMessage, error) {
	types, err := m.types()
	if err != nil {
		return nil, err
	}
	types[s.Type] = typeMeta{Fields: s.Fields}

	raw, err := json.Marshal(docsearchMeta{Types: types})
	if err != nil {
		return nil, fmt.Errorf("encode _meta.%s: %w", metaKey, err)
	}

	out := make(map[string]json.RawMessage, len(m.Meta)+1)
	for k, v := range m.Meta {
		out[k] = v
	}
	out[metaKey] = raw
	return out, nil
}

// diff describes how next differs from prev, field by field.
func diff(prev, next []domain.FieldSpec) string {
	prevByName := make(map[string]domain.FieldSpec, len(prev))
	for _, f := range prev {
		prevByName[f.Name] = f
	}

	var parts []string
	seen := make(map[string]struct{}, len(next))
	for _, f := range next {
		seen[f.Name] = struct{}{}
		old, ok := prevByName[f.Name]
		switch {
		case !ok:
			parts = append(parts, fmt.Sprintf("field %q added", f.Name))
		case !old.Equal(f):
			parts = append(parts, fmt.Sprintf("field %q changed from %s to %s", f.Name, propertyFor(old), propertyFor(f)))
		}
	}
	for _, f := range prev {
		if _, ok := seen[f.Name]; !ok {
			parts = append(parts, fmt.Sprintf("field %q removed", f.Name))
		}
	}
	if len(parts) == 0 {
		return "field order or optional flags differ"
	}
	return strings.Join(parts, "; ")
}
