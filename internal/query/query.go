// Package query builds backend-neutral query trees and renders them to the
// Elasticsearch query DSL. Nothing here performs I/O.
package query

import (
	"fmt"

	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/validator"
)

// Query is an immutable query node.
type Query interface {
	// Source renders the node as Elasticsearch query DSL.
	Source() map[string]any
	// Fields lists the document fields the node references, children included.
	Fields() []string
}

// TermQuery matches an exact value in one field.
type TermQuery struct {
	field string
	value any
}

// Term matches documents whose field holds exactly value. Text fields are
// analysed at index time, so a term must match a produced token.
func Term(field string, value any) TermQuery {
	return TermQuery{field: field, value: value}
}

// Field returns the matched field.
func (q TermQuery) Field() string { return q.field }

// Value returns the matched value.
func (q TermQuery) Value() any { return q.value }

func (q TermQuery) Source() map[string]any {
	return map[string]any{
		"term": map[string]any{
			q.field: map[string]any{"value": q.value},
		},
	}
}

func (q TermQuery) Fields() []string { return []string{q.field} }

// FullTextQuery is analysed free text over one or more fields.
type FullTextQuery struct {
	text   string
	fields []string
}

// FullText matches analysed text. With no fields the backend's default
// search fields are used.
func FullText(text string, fields ...string) FullTextQuery {
	return FullTextQuery{text: text, fields: append([]string(nil), fields...)}
}

// Text returns the query text.
func (q FullTextQuery) Text() string { return q.text }

func (q FullTextQuery) Source() map[string]any {
	if len(q.fields) == 1 {
		return map[string]any{
			"match": map[string]any{
				q.fields[0]: map[string]any{"query": q.text},
			},
		}
	}
	mm := map[string]any{"query": q.text}
	if len(q.fields) > 0 {
		mm["fields"] = append([]string(nil), q.fields...)
	}
	return map[string]any{"multi_match": mm}
}

func (q FullTextQuery) Fields() []string { return append([]string(nil), q.fields...) }

// IDsQuery matches documents by identifier.
type IDsQuery struct {
	values []string
}

// IDs matches any of the given identifiers. An empty list is rejected.
func IDs(ids ...string) (IDsQuery, error) {
	if len(ids) == 0 {
		return IDsQuery{}, apperrors.InvalidInput("ids query needs at least one id")
	}
	for _, id := range ids {
		if id == "" {
			return IDsQuery{}, apperrors.InvalidInput("ids query contains an empty id")
		}
	}
	return IDsQuery{values: append([]string(nil), ids...)}, nil
}

// Values returns a copy of the identifiers.
func (q IDsQuery) Values() []string { return append([]string(nil), q.values...) }

func (q IDsQuery) Source() map[string]any {
	return map[string]any{
		"ids": map[string]any{"values": append([]string(nil), q.values...)},
	}
}

func (q IDsQuery) Fields() []string { return nil }

// MatchAllQuery matches every document.
type MatchAllQuery struct{}

// MatchAll matches every document in scope.
func MatchAll() MatchAllQuery { return MatchAllQuery{} }

func (MatchAllQuery) Source() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

func (MatchAllQuery) Fields() []string { return nil }

// Occur says how a BoolQuery combines its children.
type Occur string

const (
	OccurMust   Occur = "must"
	OccurShould Occur = "should"
)

// BoolQuery is a conjunction or disjunction of children.
type BoolQuery struct {
	occur    Occur
	children []Query
}

// And matches documents that satisfy every child.
func And(children ...Query) (BoolQuery, error) {
	return newBool(OccurMust, children)
}

// Or matches documents that satisfy at least one child.
func Or(children ...Query) (BoolQuery, error) {
	return newBool(OccurShould, children)
}

func newBool(occur Occur, children []Query) (BoolQuery, error) {
	if len(children) == 0 {
		return BoolQuery{}, apperrors.InvalidInput(fmt.Sprintf("%s query needs at least one child", occur))
	}
	for i, c := range children {
		if c == nil {
			return BoolQuery{}, apperrors.InvalidInput(fmt.Sprintf("%s query child %d is nil", occur, i))
		}
	}
	return BoolQuery{occur: occur, children: append([]Query(nil), children...)}, nil
}

// Occur returns how the children are combined.
func (q BoolQuery) Occur() Occur { return q.occur }

// Children returns a copy of the child queries.
func (q BoolQuery) Children() []Query { return append([]Query(nil), q.children...) }

func (q BoolQuery) Source() map[string]any {
	clauses := make([]any, 0, len(q.children))
	for _, c := range q.children {
		clauses = append(clauses, c.Source())
	}
	body := map[string]any{string(q.occur): clauses}
	if q.occur == OccurShould {
		body["minimum_should_match"] = 1
	}
	return map[string]any{"bool": body}
}

func (q BoolQuery) Fields() []string {
	var out []string
	for _, c := range q.children {
		out = append(out, c.Fields()...)
	}
	return out
}

// Must is for statically known trees, e.g. in tests and examples. It panics on error.
func Must[Q Query](q Q, err error) Q {
	if err != nil {
		panic(err)
	}
	return q
}

// Validate checks that q is non-nil and that every referenced field is a
// plain field name. It repeats the constructors' checks, so zero-value nodes
// such as IDsQuery{} are refused. Term values must be strings, integers or
// booleans.
func Validate(q Query) error {
	if q == nil {
		return apperrors.InvalidInput("query is required")
	}
	for _, f := range q.Fields() {
		if !validator.IsFieldName(f) {
			return apperrors.InvalidInput(fmt.Sprintf("query references invalid field %q", f))
		}
	}
	return validateNode(q)
}

func validateNode(q Query) error {
	switch n := q.(type) {
	case TermQuery:
		switch n.value.(type) {
		case string, bool, int, int32, int64:
		default:
			return apperrors.InvalidInput(fmt.Sprintf("term on %q has unsupported value type %T", n.field, n.value))
		}
	case FullTextQuery:
		if n.text == "" {
			return apperrors.InvalidInput("full text query needs text")
		}
	case IDsQuery:
		if _, err := IDs(n.values...); err != nil {
			return err
		}
	case BoolQuery:
		if n.occur != OccurMust && n.occur != OccurShould {
			return apperrors.InvalidInput(fmt.Sprintf("bool query has unknown occur %q", n.occur))
		}
		if _, err := newBool(n.occur, n.children); err != nil {
			return err
		}
		for _, c := range n.children {
			if err := validateNode(c); err != nil {
				return err
			}
		}
	}
	return nil
}
