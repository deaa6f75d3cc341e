package memory

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// translator turns Elasticsearch query DSL into bleve queries using the
// index mapping to pick numeric or text semantics per field.
type translator struct {
	mapping mappings
	skip    []string
}

func parsingErr(format string, args ...any) error {
	return apperrors.Backend("parsing_exception", fmt.Sprintf(format, args...))
}

func (t translator) translate(raw any) (query.Query, error) {
	node, ok := raw.(map[string]any)
	if !ok || len(node) != 1 {
		return nil, parsingErr("query must be an object with a single clause")
	}

	for kind, body := range node {
		switch kind {
		case "match_all":
			return bleve.NewMatchAllQuery(), nil
		case "match_none":
			return bleve.NewMatchNoneQuery(), nil
		case "term":
			return t.term(body)
		case "match":
			return t.match(body)
		case "multi_match":
			return t.multiMatch(body)
		case "ids":
			return t.ids(body)
		case "bool":
			return t.boolean(body)
		default:
			return nil, parsingErr("unknown query [%s]", kind)
		}
	}
	return nil, parsingErr("empty query")
}

// fieldClause unpacks {"field": {"<key>": v}} and the short form {"field": v}.
func fieldClause(body any, key string) (string, any, error) {
	obj, ok := body.(map[string]any)
	if !ok || len(obj) != 1 {
		return "", nil, parsingErr("expected a single field clause")
	}
	for field, v := range obj {
		if inner, ok := v.(map[string]any); ok {
			val, ok := inner[key]
			if !ok {
				return "", nil, parsingErr("[%s] clause on [%s] is missing", key, field)
			}
			return field, val, nil
		}
		return field, v, nil
	}
	return "", nil, parsingErr("expected a single field clause")
}

func (t translator) term(body any) (query.Query, error) {
	field, v, err := fieldClause(body, "value")
	if err != nil {
		return nil, err
	}
	if p, ok := t.mapping.property(field); ok && p.numeric() {
		return numericEquals(field, v)
	}

	tq := bleve.NewTermQuery(scalarString(v))
	tq.SetField(field)
	return tq, nil
}

func (t translator) match(body any) (query.Query, error) {
	field, v, err := fieldClause(body, "query")
	if err != nil {
		return nil, err
	}
	return t.matchField(field, scalarString(v))
}

func (t translator) matchField(field, text string) (query.Query, error) {
	if p, ok := t.mapping.property(field); ok && p.numeric() {
		return numericEquals(field, text)
	}
	mq := bleve.NewMatchQuery(text)
	mq.SetField(field)
	return mq, nil
}

// multiMatch without fields searches every indexed text and keyword field,
// which keeps highlight locations attached to real field names.
func (t translator) multiMatch(body any) (query.Query, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, parsingErr("[multi_match] must be an object")
	}
	text := scalarString(obj["query"])

	var fields []string
	if raw, ok := obj["fields"].([]any); ok {
		for _, f := range raw {
			fields = append(fields, scalarString(f))
		}
	}
	if len(fields) == 0 {
		fields = t.mapping.searchableFields(t.skip...)
	}
	if len(fields) == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}

	disjuncts := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		q, err := t.matchField(f, text)
		if err != nil {
			return nil, err
		}
		disjuncts = append(disjuncts, q)
	}
	return bleve.NewDisjunctionQuery(disjuncts...), nil
}

func (t translator) ids(body any) (query.Query, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, parsingErr("[ids] must be an object")
	}
	raw, ok := obj["values"].([]any)
	if !ok {
		return nil, parsingErr("[ids] requires [values]")
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, scalarString(v))
	}
	return bleve.NewDocIDQuery(ids), nil
}

func (t translator) boolean(body any) (query.Query, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, parsingErr("[bool] must be an object")
	}

	clauses := func(key string) ([]query.Query, error) {
		var list []any
		switch v := obj[key].(type) {
		case nil:
			return nil, nil
		case []any:
			list = v
		default:
			list = []any{v}
		}
		out := make([]query.Query, 0, len(list))
		for _, c := range list {
			q, err := t.translate(c)
			if err != nil {
				return nil, err
			}
			out = append(out, q)
		}
		return out, nil
	}

	must, err := clauses("must")
	if err != nil {
		return nil, err
	}
	filter, err := clauses("filter")
	if err != nil {
		return nil, err
	}
	should, err := clauses("should")
	if err != nil {
		return nil, err
	}
	mustNot, err := clauses("must_not")
	if err != nil {
		return nil, err
	}

	required := append(must, filter...)

	// Should clauses are optional next to must/filter unless
	// minimum_should_match asks for them.
	minShould := 0
	if len(required) == 0 {
		minShould = 1
	}
	if v, ok := obj["minimum_should_match"]; ok {
		n, err := strconv.Atoi(scalarString(v))
		if err != nil {
			return nil, parsingErr("[minimum_should_match] must be an integer")
		}
		minShould = n
	}

	bq := bleve.NewBooleanQuery()
	if len(required) > 0 {
		bq.AddMust(required...)
	}
	if len(should) > 0 {
		if minShould > 0 {
			dq := bleve.NewDisjunctionQuery(should...)
			dq.SetMin(float64(minShould))
			bq.AddMust(dq)
		} else {
			bq.AddShould(should...)
		}
	}
	if len(mustNot) > 0 {
		if len(required) == 0 && len(should) == 0 {
			bq.AddMust(bleve.NewMatchAllQuery())
		}
		bq.AddMustNot(mustNot...)
	}
	if len(required) == 0 && len(should) == 0 && len(mustNot) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}
	return bq, nil
}

func numericEquals(field string, v any) (query.Query, error) {
	n, err := strconv.ParseFloat(scalarString(v), 64)
	if err != nil {
		// A non-numeric value can never equal a numeric field.
		return bleve.NewMatchNoneQuery(), nil
	}
	inclusive := true
	nq := bleve.NewNumericRangeInclusiveQuery(&n, &n, &inclusive, &inclusive)
	nq.SetField(field)
	return nq, nil
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
