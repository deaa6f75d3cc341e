package domain

import "strconv"

// Document is one stored record. Fields hold int64 for integer fields and
// string for text and keyword fields.
type Document struct {
	ID     string         `json:"id"`
	Index  string         `json:"index"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// NumericID formats a numeric identifier the way documents are keyed.
func NumericID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Outcome is the per-item result of a bulk put. Err is nil on success.
type Outcome struct {
	Position int    `json:"position"`
	ID       string `json:"id,omitempty"`
	Err      error  `json:"-"`
}

// OK reports whether the item was stored.
func (o Outcome) OK() bool {
	return o.Err == nil
}
