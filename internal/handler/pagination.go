package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset. An absent or zero limit means no
// limit; an unparsable one falls back to DefaultLimit and large ones are
// clamped to MaxLimit.
func ParsePagination(r *http.Request) PaginationParams {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil || n < 0:
			limit = DefaultLimit
		case n > MaxLimit:
			limit = MaxLimit
		default:
			limit = n
		}
	}

	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}
