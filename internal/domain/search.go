package domain

// Default highlight tags.
const (
	DefaultPreTag  = "<em>"
	DefaultPostTag = "</em>"
)

// Highlight asks the backend for fragments of the named fields.
type Highlight struct {
	Fields  []string `json:"fields"`
	PreTag  string   `json:"pre_tag,omitempty"`
	PostTag string   `json:"post_tag,omitempty"`
}

// Tags returns the configured tags with defaults applied.
func (h Highlight) Tags() (pre, post string) {
	pre, post = h.PreTag, h.PostTag
	if pre == "" {
		pre = DefaultPreTag
	}
	if post == "" {
		post = DefaultPostTag
	}
	return pre, post
}

// Hit is one projected search result.
type Hit struct {
	ID         string              `json:"id"`
	Score      float64             `json:"score"`
	Document   Document            `json:"document"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// SearchResult is a page of projected hits.
type SearchResult struct {
	Total  uint64 `json:"total"`
	Hits   []Hit  `json:"hits"`
	TookMs int64  `json:"took_ms"`
}
