package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"

	"github.com/utafrali/docsearch/internal/domain"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// Highlighter and paging defaults follow Elasticsearch's.
const (
	fragmentSize      = 100
	numberOfFragments = 5
	defaultSize       = 10
	maxResultWindow   = 10000
)

type highlightField struct {
	PreTags  []string `json:"pre_tags"`
	PostTags []string `json:"post_tags"`
}

type searchBody struct {
	Query     any  `json:"query"`
	From      *int `json:"from"`
	Size      *int `json:"size"`
	Highlight *struct {
		PreTags  []string                  `json:"pre_tags"`
		PostTags []string                  `json:"post_tags"`
		Fields   map[string]highlightField `json:"fields"`
	} `json:"highlight"`
}

type searchResponse struct {
	Took     int64 `json:"took"`
	TimedOut bool  `json:"timed_out"`
	Hits     struct {
		Total struct {
			Value    uint64 `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		MaxScore float64   `json:"max_score"`
		Hits     []hitJSON `json:"hits"`
	} `json:"hits"`
}

type hitJSON struct {
	Index     string              `json:"_index"`
	ID        string              `json:"_id"`
	Score     float64             `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

func (ix *memIndex) search(ctx context.Context, body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var req searchBody
	if err := dec.Decode(&req); err != nil {
		return nil, parsingErr("malformed search body: %v", err)
	}

	tr := translator{mapping: ix.mapping, skip: []string{domain.TypeField}}
	q, err := tr.translate(orMatchAll(req.Query))
	if err != nil {
		return nil, err
	}

	from, size := 0, defaultSize
	if req.From != nil {
		from = *req.From
	}
	if req.Size != nil {
		size = *req.Size
	}

	if from < 0 || size < 0 {
		return nil, apperrors.Backend("illegal_argument_exception", "[from] and [size] must not be negative")
	}
	if size > maxResultWindow || from > maxResultWindow-size {
		return nil, apperrors.Backend("illegal_argument_exception",
			fmt.Sprintf("Result window is too large, from + size must be less than or equal to: [%d]", maxResultWindow))
	}

	sr := bleve.NewSearchRequestOptions(q, size, from, false)
	sr.IncludeLocations = req.Highlight != nil

	res, err := ix.bleve.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("memory search %s: %w", ix.name, err)
	}

	var out searchResponse
	out.Took = res.Took.Milliseconds()
	out.Hits.Total.Value = res.Total
	out.Hits.Total.Relation = "eq"
	out.Hits.MaxScore = res.MaxScore
	out.Hits.Hits = make([]hitJSON, 0, len(res.Hits))

	for _, h := range res.Hits {
		src := ix.sources[h.ID]
		hit := hitJSON{
			Index:  ix.name,
			ID:     h.ID,
			Score:  h.Score,
			Source: json.RawMessage(src),
		}
		if req.Highlight != nil {
			hit.Highlight = highlightHit(h, src, req.Highlight.Fields, req.Highlight.PreTags, req.Highlight.PostTags)
		}
		out.Hits.Hits = append(out.Hits.Hits, hit)
	}

	return json.Marshal(out)
}

func orMatchAll(q any) any {
	if q == nil {
		return map[string]any{"match_all": map[string]any{}}
	}
	return q
}

// highlightHit builds fragments for every requested field with a match.
// Fields without a match are left out, as Elasticsearch does.
func highlightHit(h *blevesearch.DocumentMatch, src []byte, fields map[string]highlightField, pre, post []string) map[string][]string {
	if len(fields) == 0 || len(h.Locations) == 0 {
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal(src, &doc); err != nil {
		return nil
	}

	out := make(map[string][]string)
	for field, opts := range fields {
		text, ok := doc[field].(string)
		if !ok {
			continue
		}
		terms, ok := h.Locations[field]
		if !ok {
			continue
		}

		preTag, postTag := firstOr(opts.PreTags, pre, domain.DefaultPreTag), firstOr(opts.PostTags, post, domain.DefaultPostTag)
		if frags := fragments(text, spans(terms, len(text)), preTag, postTag); len(frags) > 0 {
			out[field] = frags
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstOr(field, global []string, def string) string {
	if len(field) > 0 {
		return field[0]
	}
	if len(global) > 0 {
		return global[0]
	}
	return def
}

type span struct{ start, end int }

// spans flattens term locations into sorted, non-overlapping byte ranges.
func spans(terms blevesearch.TermLocationMap, limit int) []span {
	var out []span
	for _, locs := range terms {
		for _, l := range locs {
			s, e := int(l.Start), int(l.End)
			if s < 0 || e > limit || s >= e {
				continue
			}
			out = append(out, span{s, e})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })

	merged := out[:0]
	for _, s := range out {
		if n := len(merged); n > 0 && s.start <= merged[n-1].end {
			if s.end > merged[n-1].end {
				merged[n-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// fragments cuts text into windows of about fragmentSize bytes around the
// matches and wraps each match in the tags. Short values form one fragment.
func fragments(text string, matches []span, pre, post string) []string {
	if len(matches) == 0 {
		return nil
	}

	var out []string
	i := 0
	for i < len(matches) && len(out) < numberOfFragments {
		start, end := 0, len(text)
		if len(text) > fragmentSize {
			start = wordStart(text, matches[i].start)
			end = wordEnd(text, start+fragmentSize)
			if end < matches[i].end {
				end = matches[i].end
			}
		}

		var b strings.Builder
		pos := start
		for i < len(matches) && matches[i].end <= end {
			b.WriteString(text[pos:matches[i].start])
			b.WriteString(pre)
			b.WriteString(text[matches[i].start:matches[i].end])
			b.WriteString(post)
			pos = matches[i].end
			i++
		}
		b.WriteString(text[pos:end])
		out = append(out, strings.TrimSpace(b.String()))
	}
	return out
}

// wordStart moves back from i to the start of its word, looking at most
// half a fragment back. i must be a rune start.
func wordStart(text string, i int) int {
	floor := i - fragmentSize/2
	if floor < 0 {
		floor = 0
	}
	for j := i; j > floor; j-- {
		if text[j-1] == ' ' {
			return j
		}
	}
	for floor < i && !utf8.RuneStart(text[floor]) {
		floor++
	}
	return floor
}

// wordEnd moves forward from i to the next space or the end of text, never
// splitting a rune.
func wordEnd(text string, i int) int {
	if i >= len(text) {
		return len(text)
	}
	for i < len(text) && text[i] != ' ' {
		i++
	}
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
