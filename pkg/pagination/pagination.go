package pagination

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// DefaultLimit is the page size used when the caller does not give one.
const DefaultLimit = 10

// Params is an offset/limit page request.
type Params struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return Params{Offset: 0, Limit: DefaultLimit}
}

// FromRequest extracts offset and limit from query strings. page/per_page is
// accepted as an alternative form and converted to an offset. Malformed or
// negative numbers are reported rather than silently replaced, so the caller
// can answer 400.
func FromRequest(r *http.Request) (Params, error) {
	p := DefaultParams()
	q := r.URL.Query()

	var err error
	if v := q.Get("limit"); v != "" {
		if p.Limit, err = parseNonNegative("limit", v); err != nil {
			return p, err
		}
	} else if v := q.Get("per_page"); v != "" {
		if p.Limit, err = parseNonNegative("per_page", v); err != nil {
			return p, err
		}
	}

	if v := q.Get("offset"); v != "" {
		if p.Offset, err = parseNonNegative("offset", v); err != nil {
			return p, err
		}
	} else if v := q.Get("page"); v != "" {
		page, err := parseNonNegative("page", v)
		if err != nil {
			return p, err
		}
		if p.Limit == 0 {
			p.Limit = DefaultLimit
		}
		if page > 1 {
			if page-1 > math.MaxInt/p.Limit {
				return p, fmt.Errorf("page %d is out of range", page)
			}
			p.Offset = (page - 1) * p.Limit
		}
	}

	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	return p, nil
}

func parseNonNegative(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return n, nil
}

// Result wraps one page of items with the backend's total match count.
type Result[T any] struct {
	Data    []T    `json:"data"`
	Total   uint64 `json:"total"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
	HasNext bool   `json:"has_next"`
	HasPrev bool   `json:"has_prev"`
}

// NewResult creates a page result.
func NewResult[T any](data []T, total uint64, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	return Result[T]{
		Data:    data,
		Total:   total,
		Offset:  params.Offset,
		Limit:   params.Limit,
		HasNext: uint64(params.Offset+len(data)) < total,
		HasPrev: params.Offset > 0,
	}
}
