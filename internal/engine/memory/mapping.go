package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// mappings mirrors the Elasticsearch mappings object.
type mappings struct {
	Meta       json.RawMessage     `json:"_meta,omitempty"`
	Properties map[string]property `json:"properties"`
}

type property struct {
	Type     string `json:"type"`
	Store    *bool  `json:"store,omitempty"`
	Index    *bool  `json:"index,omitempty"`
	Analyzer string `json:"analyzer,omitempty"`
}

func (p property) indexed() bool {
	return p.Index == nil || *p.Index
}

func (p property) stored() bool {
	return p.Store != nil && *p.Store
}

func (p property) sameAs(o property) bool {
	return p.Type == o.Type && p.Analyzer == o.Analyzer &&
		p.indexed() == o.indexed() && p.stored() == o.stored()
}

func (p property) numeric() bool {
	return p.Type == "long" || p.Type == "integer"
}

// analyzers maps Elasticsearch analyzer names onto bleve's built-in ones.
// Names bleve does not ship (ik_smart, ik_max_word, ...) fall back to standard.
var analyzers = map[string]string{
	"standard": standard.Name,
	"simple":   simple.Name,
	"keyword":  keyword.Name,
	"english":  en.AnalyzerName,
}

func bleveAnalyzer(name string) string {
	if a, ok := analyzers[name]; ok {
		return a
	}
	return standard.Name
}

// bleveMapping builds a static bleve mapping: only declared properties are indexed.
func (m mappings) bleveMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentStaticMapping()
	for name, p := range m.Properties {
		var fm *mapping.FieldMapping
		switch {
		case p.Type == "text":
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = bleveAnalyzer(p.Analyzer)
			fm.IncludeTermVectors = true
		case p.Type == "keyword":
			fm = bleve.NewKeywordFieldMapping()
			fm.IncludeInAll = false
		case p.numeric():
			fm = bleve.NewNumericFieldMapping()
			fm.IncludeInAll = false
		default:
			continue
		}
		fm.Store = false
		fm.Index = p.indexed()
		dm.AddFieldMappingsAt(name, fm)
	}
	im.DefaultMapping = dm
	return im
}

// merge adds update's properties to m. It returns the merged mapping and the
// number of new fields, or an error if an existing field would change.
func (m mappings) merge(update mappings) (mappings, int, error) {
	out := mappings{
		Meta:       m.Meta,
		Properties: make(map[string]property, len(m.Properties)+len(update.Properties)),
	}
	for k, v := range m.Properties {
		out.Properties[k] = v
	}
	if len(update.Meta) > 0 {
		out.Meta = update.Meta
	}

	names := make([]string, 0, len(update.Properties))
	for name := range update.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	added := 0
	for _, name := range names {
		p := update.Properties[name]
		if cur, ok := out.Properties[name]; ok {
			if !cur.sameAs(p) {
				return m, 0, apperrors.Backend("illegal_argument_exception",
					fmt.Sprintf("mapper [%s] cannot be changed from %s to %s", name, describe(cur), describe(p)))
			}
			continue
		}
		out.Properties[name] = p
		added++
	}
	return out, added, nil
}

// check rejects values a mapped numeric field cannot hold.
func (m mappings) check(doc map[string]any) error {
	for name, v := range doc {
		p, ok := m.Properties[name]
		if !ok || !p.numeric() || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
		case string:
			if _, err := strconv.ParseFloat(n, 64); err != nil {
				return apperrors.Backend("document_parsing_exception",
					fmt.Sprintf("failed to parse field [%s] of type [%s]", name, p.Type))
			}
		default:
			return apperrors.Backend("document_parsing_exception",
				fmt.Sprintf("failed to parse field [%s] of type [%s]", name, p.Type))
		}
	}
	return nil
}

func (m mappings) property(field string) (property, bool) {
	p, ok := m.Properties[field]
	return p, ok
}

// searchableFields lists text and keyword fields in name order, skipping
// fields that are not indexed and any listed in skip.
func (m mappings) searchableFields(skip ...string) []string {
	omit := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		omit[s] = struct{}{}
	}
	var out []string
	for name, p := range m.Properties {
		if _, ok := omit[name]; ok || !p.indexed() {
			continue
		}
		if p.Type == "text" || p.Type == "keyword" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func describe(p property) string {
	if p.Analyzer != "" {
		return fmt.Sprintf("[%s/%s]", p.Type, p.Analyzer)
	}
	return "[" + p.Type + "]"
}
