package shared

import (
	"net/http"
	"strconv"
)

// Employee, record and audit listings share these bounds.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 500
)

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset, clamping limit to MaxPageLimit.
// Malformed values fall back to the defaults.
func ParsePagination(r *http.Request) Pagination {
	page := Pagination{Limit: DefaultPageLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page.Limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			page.Offset = v
		}
	}
	if page.Limit > MaxPageLimit {
		page.Limit = MaxPageLimit
	}
	return page
}

// Window returns the slice of items the page selects.
func Window[T any](items []T, page Pagination) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
