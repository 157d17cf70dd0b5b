package shared

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Page carries limit/offset parsed from a request.
type Page struct {
	Limit  int
	Offset int
}

// PageFromRequest reads limit/offset query params with sane bounds.
func PageFromRequest(r *http.Request) Page {
	page := Page{Limit: defaultPageSize}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page.Limit = v
		}
	}
	if page.Limit > maxPageSize {
		page.Limit = maxPageSize
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			page.Offset = v
		}
	}
	return page
}
