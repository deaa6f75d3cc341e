package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/docsearch/internal/engine"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/logger"
)

const blogMappings = `{"mappings":{"properties":{
	"doc_type":{"type":"keyword"},
	"id":{"type":"long","store":true},
	"title":{"type":"text","store":true,"analyzer":"ik_smart"},
	"content":{"type":"text","store":true,"analyzer":"standard"}
}}}`

type testResponse struct {
	Hits struct {
		Total struct {
			Value uint64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Source    map[string]any      `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func newBlog(t *testing.T) *Engine {
	t.Helper()
	eng := New("my-elasticsearch", logger.Discard())
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.CreateIndex(context.Background(), "blog", []byte(blogMappings)))
	return eng
}

func put(t *testing.T, eng *Engine, id, body string) {
	t.Helper()
	_, err := eng.IndexDocument(context.Background(), "blog", id, []byte(body), engine.RefreshNone)
	require.NoError(t, err)
}

func search(t *testing.T, eng *Engine, body string) testResponse {
	t.Helper()
	raw, err := eng.Search(context.Background(), "blog", []byte(body))
	require.NoError(t, err)
	var resp testResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func seed(t *testing.T, eng *Engine) {
	t.Helper()
	put(t, eng, "1", `{"doc_type":"article","id":1,"title":"search is fun","content":"a full text search server"}`)
	put(t, eng, "2", `{"doc_type":"article","id":2,"title":"distributed storage","content":"shards and replicas"}`)
	put(t, eng, "3", `{"doc_type":"note","id":3,"title":"fun with search","content":"notes"}`)
}

func ids(resp testResponse) []string {
	out := make([]string, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		out = append(out, h.ID)
	}
	return out
}

func TestEngine_Info(t *testing.T) {
	eng := New("my-elasticsearch", logger.Discard())
	info, err := eng.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-elasticsearch", info.ClusterName)
}

func TestEngine_IndexLifecycle(t *testing.T) {
	eng := newBlog(t)
	ctx := context.Background()

	ok, err := eng.IndexExists(ctx, "blog")
	require.NoError(t, err)
	assert.True(t, ok)

	err = eng.CreateIndex(ctx, "blog", []byte(blogMappings))
	assert.True(t, errors.Is(err, apperrors.ErrBackend))

	require.NoError(t, eng.DeleteIndex(ctx, "blog"))
	require.NoError(t, eng.DeleteIndex(ctx, "blog"))

	ok, err = eng.IndexExists(ctx, "blog")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = eng.GetMapping(ctx, "blog")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestEngine_GetMappingRoundTrip(t *testing.T) {
	eng := newBlog(t)
	m, err := eng.GetMapping(context.Background(), "blog")
	require.NoError(t, err)
	assert.JSONEq(t, `{"properties":{
		"doc_type":{"type":"keyword"},
		"id":{"type":"long","store":true},
		"title":{"type":"text","store":true,"analyzer":"ik_smart"},
		"content":{"type":"text","store":true,"analyzer":"standard"}
	}}`, string(m))
}

func TestEngine_PutMapping(t *testing.T) {
	eng := newBlog(t)
	ctx := context.Background()
	put(t, eng, "1", `{"doc_type":"article","id":1,"title":"t","content":"c","author":"ann"}`)

	require.NoError(t, eng.PutMapping(ctx, "blog", []byte(`{"_meta":{"v":1},"properties":{"author":{"type":"keyword"}}}`)))

	m, err := eng.GetMapping(ctx, "blog")
	require.NoError(t, err)
	assert.Contains(t, string(m), `"author"`)
	assert.Contains(t, string(m), `"_meta":{"v":1}`)

	// Existing documents are searchable on the new field after the rebuild.
	resp := search(t, eng, `{"query":{"term":{"author":{"value":"ann"}}}}`)
	assert.Equal(t, []string{"1"}, ids(resp))
}

func TestEngine_PutMapping_Conflict(t *testing.T) {
	eng := newBlog(t)
	err := eng.PutMapping(context.Background(), "blog", []byte(`{"properties":{"title":{"type":"keyword"}}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBackend))
	assert.Contains(t, err.Error(), "illegal_argument_exception")
}

func TestEngine_DocumentCRUD(t *testing.T) {
	eng := newBlog(t)
	ctx := context.Background()

	put(t, eng, "1", `{"doc_type":"article","id":1,"title":"old","content":"c"}`)
	put(t, eng, "1", `{"doc_type":"article","id":1,"title":"new","content":"c"}`)

	src, err := eng.GetDocument(ctx, "blog", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_type":"article","id":1,"title":"new","content":"c"}`, string(src))

	found, err := eng.DeleteDocument(ctx, "blog", "1", engine.RefreshNone)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = eng.DeleteDocument(ctx, "blog", "1", engine.RefreshNone)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = eng.GetDocument(ctx, "blog", "1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestEngine_ServerAssignedID(t *testing.T) {
	eng := newBlog(t)
	id, err := eng.IndexDocument(context.Background(), "blog", "", []byte(`{"title":"x"}`), engine.RefreshNone)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = eng.GetDocument(context.Background(), "blog", id)
	assert.NoError(t, err)
}

func TestEngine_RejectsNonNumericLong(t *testing.T) {
	eng := newBlog(t)
	_, err := eng.IndexDocument(context.Background(), "blog", "1", []byte(`{"id":"abc"}`), engine.RefreshNone)
	assert.True(t, errors.Is(err, apperrors.ErrBackend))
}

func TestEngine_AutoCreatesIndex(t *testing.T) {
	eng := New("c", logger.Discard())
	_, err := eng.IndexDocument(context.Background(), "fresh", "1", []byte(`{"a":"b"}`), engine.RefreshNone)
	require.NoError(t, err)

	ok, err := eng.IndexExists(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSearch_Term(t *testing.T) {
	eng := newBlog(t)
	seed(t, eng)

	resp := search(t, eng, `{"query":{"term":{"content":{"value":"search"}}}}`)
	assert.Equal(t, []string{"1"}, ids(resp))

	resp = search(t, eng, `{"query":{"term":{"id":{"value":2}}}}`)
	assert.Equal(t, []string{"2"}, ids(resp))
}

func TestSearch_MatchAndMultiMatch(t *testing.T) {
	eng := newBlog(t)
	seed(t, eng)

	resp := search(t, eng, `{"query":{"match":{"title":{"query":"fun"}}}}`)
	assert.ElementsMatch(t, []string{"1", "3"}, ids(resp))

	resp = search(t, eng, `{"query":{"multi_match":{"query":"replicas","fields":["title","content"]}}}`)
	assert.Equal(t, []string{"2"}, ids(resp))

	resp = search(t, eng, `{"query":{"multi_match":{"query":"storage"}}}`)
	assert.Equal(t, []string{"2"}, ids(resp))
}

func TestSearch_IDsAndBool(t *testing.T) {
	eng := newBlog(t)
	seed(t, eng)

	resp := search(t, eng, `{"query":{"ids":{"values":["2","3","9"]}}}`)
	assert.ElementsMatch(t, []string{"2", "3"}, ids(resp))

	resp = search(t, eng, `{"query":{"bool":{
		"must":[{"match":{"title":{"query":"fun"}}}],
		"filter":[{"term":{"doc_type":"article"}}]
	}}}`)
	assert.Equal(t, []string{"1"}, ids(resp))

	resp = search(t, eng, `{"query":{"bool":{
		"should":[{"term":{"id":{"value":1}}},{"term":{"id":{"value":2}}}],
		"minimum_should_match":1
	}}}`)
	assert.ElementsMatch(t, []string{"1", "2"}, ids(resp))
}

func TestSearch_Pagination(t *testing.T) {
	eng := newBlog(t)
	for i := 0; i < 25; i++ {
		put(t, eng, fmt.Sprint(i), fmt.Sprintf(`{"doc_type":"article","id":%d,"title":"t","content":"c"}`, i))
	}

	resp := search(t, eng, `{"query":{"match_all":{}},"from":20,"size":10}`)
	assert.Equal(t, uint64(25), resp.Hits.Total.Value)
	assert.Len(t, resp.Hits.Hits, 5)

	resp = search(t, eng, `{"query":{"match_all":{}}}`)
	assert.Len(t, resp.Hits.Hits, 10, "default size")
}

func TestSearch_Highlight(t *testing.T) {
	eng := newBlog(t)
	seed(t, eng)

	resp := search(t, eng, `{
		"query":{"match":{"title":{"query":"fun"}}},
		"highlight":{"fields":{"title":{"pre_tags":["<b>"],"post_tags":["</b>"]},"content":{}}}
	}`)
	require.Len(t, resp.Hits.Hits, 2)
	for _, h := range resp.Hits.Hits {
		require.Contains(t, h.Highlight, "title")
		assert.Contains(t, h.Highlight["title"][0], "<b>fun</b>")
		assert.NotContains(t, h.Highlight, "content", "no match in content")
	}
}

func TestSearch_HighlightDefaultTags(t *testing.T) {
	eng := newBlog(t)
	seed(t, eng)

	resp := search(t, eng, `{"query":{"term":{"content":"replicas"}},"highlight":{"fields":{"content":{}}}}`)
	require.Len(t, resp.Hits.Hits, 1)
	assert.Equal(t, []string{"shards and <em>replicas</em>"}, resp.Hits.Hits[0].Highlight["content"])
}

func TestSearch_UnknownClause(t *testing.T) {
	eng := newBlog(t)
	_, err := eng.Search(context.Background(), "blog", []byte(`{"query":{"fuzzy":{}}}`))
	assert.True(t, errors.Is(err, apperrors.ErrBackend))

	_, err = eng.Search(context.Background(), "missing", []byte(`{}`))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSearch_ResultWindow(t *testing.T) {
	eng := newBlog(t)
	bodies := []string{
		`{"from":9223372036854775807,"size":10}`,
		`{"from":9995,"size":10}`,
		`{"from":-1}`,
	}
	for _, body := range bodies {
		_, err := eng.Search(context.Background(), "blog", []byte(body))
		assert.True(t, errors.Is(err, apperrors.ErrBackend), "%s: got %v", body, err)
	}
}

func TestFragments_LongText(t *testing.T) {
	text := strings.Repeat("lorem ipsum ", 30) + "needle " + strings.Repeat("dolor sit ", 30)
	start := strings.Index(text, "needle")

	frags := fragments(text, []span{{start, start + len("needle")}}, "<em>", "</em>")
	require.Len(t, frags, 1)
	assert.Contains(t, frags[0], "<em>needle</em>")
	assert.Less(t, len(frags[0]), 140)
}

func TestFragments_MaxFive(t *testing.T) {
	text := strings.Repeat("needle "+strings.Repeat("x", 120)+" ", 8)
	var matches []span
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], "needle")
		if j < 0 {
			break
		}
		matches = append(matches, span{i + j, i + j + 6})
		i += j + 6
	}
	assert.Len(t, fragments(text, matches, "<em>", "</em>"), 5)
}

func TestEngine_Close(t *testing.T) {
	eng := New("c", logger.Discard())
	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err := eng.Info(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrTransport))
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	eng := newBlog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = eng.IndexDocument(ctx, "blog", fmt.Sprint(i), []byte(`{"title":"x"}`), engine.RefreshNone)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = eng.Search(ctx, "blog", []byte(`{"query":{"match_all":{}}}`))
		}()
	}
	wg.Wait()

	resp := search(t, eng, `{"query":{"match_all":{}},"size":50}`)
	assert.Equal(t, uint64(20), resp.Hits.Total.Value)
}
