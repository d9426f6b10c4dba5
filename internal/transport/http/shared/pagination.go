package shared

import (
	"net/http"
	"strconv"
	"strings"
)

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query string. Malformed or out-of-range values fall back
// to defaultLimit and zero, and limit is capped at maxLimit when maxLimit is positive.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	query := r.URL.Query()
	page := Pagination{
		Limit:  queryInt(query.Get("limit"), defaultLimit, 1),
		Offset: queryInt(query.Get("offset"), 0, 0),
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page
}

func queryInt(raw string, fallback, minimum int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < minimum {
		return fallback
	}
	return v
}
