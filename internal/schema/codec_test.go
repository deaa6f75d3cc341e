package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/docsearch/internal/domain"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

func codecSchema() domain.TypeSchema {
	return domain.TypeSchema{
		Index: "blog",
		Type:  "article",
		Fields: []domain.FieldSpec{
			{Name: "id", Kind: domain.KindInteger, Store: true, Index: true},
			{Name: "title", Kind: domain.KindText, Index: true},
			{Name: "tag", Kind: domain.KindKeyword, Index: true, Optional: true},
		},
	}
}

func TestEncode(t *testing.T) {
	out, err := Encode(codecSchema(), map[string]any{"id": 1, "title": "search is fun"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":             int64(1),
		"title":          "search is fun",
		domain.TypeField: "article",
	}, out)
}

func TestEncode_IntegerForms(t *testing.T) {
	for _, v := range []any{int32(7), int64(7), uint16(7), float64(7), json.Number("7")} {
		out, err := Encode(codecSchema(), map[string]any{"id": v, "title": "x"})
		require.NoError(t, err, "%T", v)
		assert.Equal(t, int64(7), out["id"], "%T", v)
	}
}

func TestEncode_Rejects(t *testing.T) {
	tests := map[string]map[string]any{
		"unknown field":    {"id": 1, "title": "x", "author": "ann"},
		"missing required": {"title": "x"},
		"string for int":   {"id": "1", "title": "x"},
		"fractional int":   {"id": 1.5, "title": "x"},
		"int for text":     {"id": 1, "title": 3},
		"reserved field":   {"id": 1, "title": "x", domain.TypeField: "comment"},
	}
	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(codecSchema(), fields)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode(codecSchema(), "1", []byte(`{"id":1,"title":"search is fun","tag":"go","doc_type":"article"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(1), "title": "search is fun", "tag": "go"}, got)
}

func TestDecode_Drift(t *testing.T) {
	tests := map[string]string{
		"text where integer declared": `{"id":"one","title":"x"}`,
		"undeclared field":            `{"id":1,"title":"x","views":3}`,
		"missing required":            `{"title":"x"}`,
		"malformed":                   `{"id":`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(codecSchema(), "1", []byte(src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrDeserialization), "got %v", err)
		})
	}
}

func TestTypeOf(t *testing.T) {
	typ, err := TypeOf([]byte(`{"doc_type":"article","id":1}`))
	require.NoError(t, err)
	assert.Equal(t, "article", typ)

	_, err = TypeOf([]byte(`{"id":1}`))
	assert.Error(t, err)
}
