package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/utafrali/docsearch/internal/domain"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// Encode checks fields against s and returns the document body to store:
// integers as int64, text and keyword values as strings, plus the type label.
// Unknown fields, missing required fields and wrong kinds fail with
// ErrInvalidInput. Nothing is inferred from the document's shape.
func Encode(s domain.TypeSchema, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields)+1)
	for name, v := range fields {
		spec, ok := s.Field(name)
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("field %q is not declared for %s", name, s.Key()))
		}
		if v == nil {
			continue
		}
		nv, err := normalize(spec, v)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		out[name] = nv
	}

	for _, spec := range s.Fields {
		if _, ok := out[spec.Name]; !ok && !spec.Optional {
			return nil, apperrors.InvalidInput(fmt.Sprintf("required field %q is missing", spec.Name))
		}
	}

	out[domain.TypeField] = s.Type
	return out, nil
}

func normalize(spec domain.FieldSpec, v any) (any, error) {
	switch spec.Kind {
	case domain.KindInteger:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("field %q expects an integer, got %T", spec.Name, v)
		}
		return n, nil
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %q expects a string, got %T", spec.Name, v)
		}
		return s, nil
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// TypeOf returns the type label stored in a document source.
func TypeOf(src []byte) (string, error) {
	var head struct {
		Type *string `json:"doc_type"`
	}
	if err := json.Unmarshal(src, &head); err != nil {
		return "", err
	}
	if head.Type == nil {
		return "", fmt.Errorf("source has no %s", domain.TypeField)
	}
	return *head.Type, nil
}

// Decode reads a stored source back into field values according to s.
// A value whose kind no longer matches the schema, or a field the schema
// does not declare, fails with ErrDeserialization.
func Decode(s domain.TypeSchema, id string, src []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.Deserialization(id, fmt.Sprintf("malformed source: %v", err))
	}

	out := make(map[string]any, len(raw))
	for name, v := range raw {
		if name == domain.TypeField {
			continue
		}
		spec, ok := s.Field(name)
		if !ok {
			return nil, apperrors.Deserialization(id, fmt.Sprintf("field %q is not declared for %s", name, s.Key()))
		}
		if v == nil {
			continue
		}
		nv, err := normalize(spec, v)
		if err != nil {
			return nil, apperrors.Deserialization(id, err.Error())
		}
		out[name] = nv
	}

	for _, spec := range s.Fields {
		if _, ok := out[spec.Name]; !ok && !spec.Optional {
			return nil, apperrors.Deserialization(id, fmt.Sprintf("required field %q is missing", spec.Name))
		}
	}
	return out, nil
}
