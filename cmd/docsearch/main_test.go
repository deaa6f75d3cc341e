package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/docsearch/internal/client"
	"github.com/utafrali/docsearch/internal/domain"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

const blogSchemas = `schemas:
  - index: blog
    type: article
    fields:
      - {name: id, kind: integer, store: true, index: true}
      - {name: title, kind: text, store: true, index: true, analyzer: ik_smart}
  - index: blog
    type: comment
    fields:
      - {name: content, kind: text, store: true, index: true}
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DOCSEARCH_ENGINE", "memory")
	t.Setenv("DOCSEARCH_LOG_LEVEL", "error")

	cmd := newRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaApply_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogSchemas), 0o600))

	out, err := execute(t, "", "schema", "apply", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "declared blog/article (2 fields)\ndeclared blog/comment (1 fields)\n", out)
}

func TestSchemaApply_Stdin(t *testing.T) {
	out, err := execute(t, blogSchemas, "schema", "apply", "-f", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "declared blog/article")
}

func TestSchemaApply_Errors(t *testing.T) {
	tests := map[string]string{
		"empty file":   "schemas: []\n",
		"not yaml":     "schemas: [\n",
		"invalid kind": "schemas:\n  - {index: blog, type: article, fields: [{name: id, kind: float}]}\n",
	}
	for name, stdin := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, stdin, "schema", "apply", "-f", "-")
			assert.Error(t, err)
		})
	}
}

func TestSchemaApply_RequiresFile(t *testing.T) {
	_, err := execute(t, "", "schema", "apply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")
}

func TestReadSchemaFile(t *testing.T) {
	cmd := newRootCmd("test")
	cmd.SetIn(strings.NewReader(blogSchemas))

	schemas, err := readSchemaFile(cmd, "-")
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, domain.TypeSchema{
		Index: "blog",
		Type:  "article",
		Fields: []domain.FieldSpec{
			{Name: "id", Kind: domain.KindInteger, Store: true, Index: true},
			{Name: "title", Kind: domain.KindText, Store: true, Index: true, Analyzer: "ik_smart"},
		},
	}, schemas[0])
}

func TestSearch_UnknownIndex(t *testing.T) {
	_, err := execute(t, "", "search", "--index", "blog", "go")
	assert.Error(t, err)
}

func TestSearch_RequiresIndex(t *testing.T) {
	_, err := execute(t, "", "search", "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index")
}

func TestSearchOptions_Request(t *testing.T) {
	req, err := (&searchOptions{index: "blog", limit: 5}).request(nil)
	require.NoError(t, err)
	assert.Equal(t, client.SearchRequest{Index: "blog", Limit: 5}, req)

	req, err = (&searchOptions{index: "blog", fields: []string{"title"}, highlight: []string{"title"}}).request([]string{"go", "channels"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"full_text":{"text":"go channels","fields":["title"]}}`, string(req.Query))
	assert.Equal(t, &domain.Highlight{Fields: []string{"title"}}, req.Highlight)

	req, err = (&searchOptions{index: "blog"}).request([]string{"go"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"full_text":{"text":"go"}}`, string(req.Query))

	req, err = (&searchOptions{index: "blog", queryJSON: `{"ids":["1"]}`}).request(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ids":["1"]}`, string(req.Query))

	_, err = (&searchOptions{index: "blog", queryJSON: `{"ids":[]}`}).request(nil)
	assert.Error(t, err)

	_, err = (&searchOptions{index: "blog", queryJSON: `{"ids":["1"]}`}).request([]string{"go"})
	assert.Error(t, err)
}

func TestLocalBackend_Search(t *testing.T) {
	t.Setenv("DOCSEARCH_ENGINE", "memory")
	opts := &rootOptions{logLevel: "error"}
	cmd := newRootCmd("test")
	cmd.SetContext(context.Background())

	b, err := opts.backend(cmd)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.DeclareSchema(ctx, domain.TypeSchema{
		Index:  "blog",
		Type:   "comment",
		Fields: []domain.FieldSpec{{Name: "content", Kind: domain.KindText, Store: true, Index: true}},
	}))

	res, err := b.Search(ctx, client.SearchRequest{Index: "blog"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Total)

	_, err = b.Search(ctx, client.SearchRequest{Index: "blog", Query: json.RawMessage(`{"nope":{}}`)})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)
}

func TestLocalBackend_IndexAdministration(t *testing.T) {
	t.Setenv("DOCSEARCH_ENGINE", "memory")
	opts := &rootOptions{logLevel: "error"}
	cmd := newRootCmd("test")
	cmd.SetContext(context.Background())

	b, err := opts.backend(cmd)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.DeclareSchema(ctx, domain.TypeSchema{
		Index:  "blog",
		Type:   "comment",
		Fields: []domain.FieldSpec{{Name: "content", Kind: domain.KindText, Store: true, Index: true}},
	}))

	desc, err := b.DescribeMapping(ctx, "blog", "comment")
	require.NoError(t, err)
	assert.Contains(t, desc, "comment")

	require.NoError(t, b.RefreshIndex(ctx, "blog"))
	require.NoError(t, b.DropIndex(ctx, "blog"))

	_, err = b.DescribeSchema(ctx, "blog", "comment")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)
	err = b.RefreshIndex(ctx, "blog")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)
}

func TestSchemaDrop(t *testing.T) {
	out, err := execute(t, "", "schema", "drop", "blog")
	require.NoError(t, err)
	assert.Equal(t, "dropped blog\n", out)

	_, err = execute(t, "", "schema", "drop")
	assert.Error(t, err)
}

func TestSchemaDescribe_MappingUnknown(t *testing.T) {
	_, err := execute(t, "", "schema", "describe", "--mapping", "blog", "article")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)
}

func TestSearch_RefreshUnknownIndex(t *testing.T) {
	_, err := execute(t, "", "search", "--index", "blog", "--refresh")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "refresh runs before the search: %v", err)
}

func TestServerFlag(t *testing.T) {
	_, err := execute(t, "", "--server", "not a url", "schema", "describe", "blog", "article")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server URL")
}

func TestPublish_RequiresBrokers(t *testing.T) {
	_, err := execute(t, "", "publish", "delete", "--index", "blog", "--type", "article", "--id", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCSEARCH_KAFKA_BROKERS")
}

func TestPublish_DeleteRequiresID(t *testing.T) {
	_, err := execute(t, "", "publish", "delete", "--index", "blog", "--type", "article")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id")
}

func TestReadFields(t *testing.T) {
	cmd := newRootCmd("test")
	cmd.SetIn(strings.NewReader(`{"id": 9007199254740993, "title": "big"}`))

	fields, err := readFields(cmd, "-")
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), fields["id"])
	assert.Equal(t, "big", fields["title"])
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "test")
}
