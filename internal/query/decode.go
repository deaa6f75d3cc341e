package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/utafrali/docsearch/pkg/errors"
)

// Decode parses the JSON query form used by the HTTP API, the CLI and
// ingestion events. Each object holds exactly one operator:
//
//	{"term": {"field": "content", "value": "search"}}
//	{"full_text": {"text": "elastic search", "fields": ["title", "content"]}}
//	{"ids": ["1", "2"]}
//	{"match_all": {}}
//	{"and": [ ... ]}
//	{"or": [ ... ]}
func Decode(data []byte) (Query, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("decode query: %v", err))
	}
	return decodeNode(raw, "$")
}

func decodeNode(raw any, path string) (Query, error) {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) != 1 {
		return nil, invalid(path, "must be an object with exactly one operator")
	}

	for op, body := range obj {
		switch op {
		case "term":
			return decodeTerm(body, path+".term")
		case "full_text":
			return decodeFullText(body, path+".full_text")
		case "ids":
			list, ok := body.([]any)
			if !ok {
				return nil, invalid(path+".ids", "must be an array of strings")
			}
			ids := make([]string, 0, len(list))
			for i, v := range list {
				s, err := scalarID(v)
				if err != nil {
					return nil, invalid(fmt.Sprintf("%s.ids[%d]", path, i), err.Error())
				}
				ids = append(ids, s)
			}
			return IDs(ids...)
		case "match_all":
			return MatchAll(), nil
		case "and", "or":
			list, ok := body.([]any)
			if !ok {
				return nil, invalid(path+"."+op, "must be an array of queries")
			}
			children := make([]Query, 0, len(list))
			for i, c := range list {
				child, err := decodeNode(c, fmt.Sprintf("%s.%s[%d]", path, op, i))
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			if op == "and" {
				return And(children...)
			}
			return Or(children...)
		default:
			return nil, invalid(path, fmt.Sprintf("unknown operator %q", op))
		}
	}
	return nil, invalid(path, "empty query")
}

func decodeTerm(body any, path string) (Query, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, invalid(path, "must be an object")
	}
	field, _ := obj["field"].(string)
	if field == "" {
		return nil, invalid(path+".field", "is required")
	}

	switch v := obj["value"].(type) {
	case string, bool:
		return Term(field, v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, invalid(path+".value", "numbers must be integers")
		}
		return Term(field, n), nil
	case nil:
		return nil, invalid(path+".value", "is required")
	default:
		return nil, invalid(path+".value", fmt.Sprintf("unsupported type %T", v))
	}
}

func decodeFullText(body any, path string) (Query, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, invalid(path, "must be an object")
	}
	text, _ := obj["text"].(string)
	if text == "" {
		return nil, invalid(path+".text", "is required")
	}

	var fields []string
	if raw, ok := obj["fields"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, invalid(path+".fields", "must be an array of strings")
		}
		for i, f := range list {
			s, ok := f.(string)
			if !ok || s == "" {
				return nil, invalid(fmt.Sprintf("%s.fields[%d]", path, i), "must be a non-empty string")
			}
			fields = append(fields, s)
		}
	}
	return FullText(text, fields...), nil
}

func scalarID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case json.Number:
		if _, err := id.Int64(); err != nil {
			return "", fmt.Errorf("numeric ids must be integers")
		}
		return id.String(), nil
	default:
		return "", fmt.Errorf("must be a string or integer")
	}
}

func invalid(path, msg string) error {
	return apperrors.InvalidInput(fmt.Sprintf("query %s %s", path, msg))
}
