package domain

import (
	"fmt"

	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/validator"
)

// TypeField is the reserved keyword field that carries a document's type
// label inside an index.
const TypeField = "doc_type"

// FieldKind is the logical kind of a declared field.
type FieldKind string

const (
	KindInteger FieldKind = "integer"
	KindText    FieldKind = "text"
	KindKeyword FieldKind = "keyword"
)

// WireType returns the backend mapping type for the kind.
func (k FieldKind) WireType() string {
	switch k {
	case KindInteger:
		return "long"
	default:
		return string(k)
	}
}

// KindFromWire is the inverse of WireType.
func KindFromWire(t string) (FieldKind, bool) {
	switch t {
	case "long", "integer":
		return KindInteger, true
	case "text":
		return KindText, true
	case "keyword":
		return KindKeyword, true
	default:
		return "", false
	}
}

// Valid reports whether k is one of the supported kinds.
func (k FieldKind) Valid() bool {
	return k == KindInteger || k == KindText || k == KindKeyword
}

// FieldSpec declares one field of a type.
type FieldSpec struct {
	Name     string    `json:"name" yaml:"name" validate:"required,fieldname"`
	Kind     FieldKind `json:"kind" yaml:"kind" validate:"required,oneof=integer text keyword"`
	Store    bool      `json:"store" yaml:"store"`
	Index    bool      `json:"index" yaml:"index"`
	Analyzer string    `json:"analyzer,omitempty" yaml:"analyzer,omitempty"`
	Optional bool      `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Equal compares every declared attribute.
func (f FieldSpec) Equal(o FieldSpec) bool {
	return f == o
}

// TypeSchema is the ordered field list of one type within one index.
// It is immutable once registered.
type TypeSchema struct {
	Index  string      `json:"index" yaml:"index" validate:"required,identifier"`
	Type   string      `json:"type" yaml:"type" validate:"required,identifier"`
	Fields []FieldSpec `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
}

// Validate checks names, kinds, the analyzer rule and the reserved field.
func (s TypeSchema) Validate() error {
	if err := validator.Validate(s); err != nil {
		return apperrors.Wrap(apperrors.InvalidInput(err.Error()), "validate schema")
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == TypeField {
			return apperrors.InvalidInput(fmt.Sprintf("field name %q is reserved", TypeField))
		}
		if _, dup := seen[f.Name]; dup {
			return apperrors.InvalidInput(fmt.Sprintf("field %q declared twice", f.Name))
		}
		seen[f.Name] = struct{}{}

		if f.Analyzer != "" && f.Kind != KindText {
			return apperrors.InvalidInput(fmt.Sprintf("field %q: analyzer is only legal on text fields", f.Name))
		}
	}
	return nil
}

// Field returns the spec for name.
func (s TypeSchema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Equal compares index, type and the ordered field list.
func (s TypeSchema) Equal(o TypeSchema) bool {
	if s.Index != o.Index || s.Type != o.Type || len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if !s.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

// Key is the registry key "index/type".
func (s TypeSchema) Key() string {
	return SchemaKey(s.Index, s.Type)
}

// SchemaKey builds the registry key for an index and type.
func SchemaKey(index, docType string) string {
	return index + "/" + docType
}
