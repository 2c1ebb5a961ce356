package shared

import (
	"net/url"
	"strconv"
	"strings"
)

// PageRequest is a page/size pair for paginated listings. A zero Size
// means the caller should apply its own default.
type PageRequest struct {
	Page int
	Size int
}

// NewPageRequest clamps page and size for a listing query. Size falls
// back to def when unset and is capped at max.
func NewPageRequest(page, size, def, max int) PageRequest {
	if size <= 0 {
		size = def
	}
	if max > 0 && size > max {
		size = max
	}
	if page <= 0 {
		page = 1
	}
	return PageRequest{Page: page, Size: size}
}

// Offset returns the row offset for the request.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Size
}

// ParsePageRequest reads the page and page_size query parameters. Values
// must be positive integers; absent parameters are left zero.
func ParsePageRequest(query url.Values) (PageRequest, error) {
	var req PageRequest
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return PageRequest{}, FieldError{Field: "page"}
		}
		req.Page = parsed
	}
	if v := strings.TrimSpace(query.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return PageRequest{}, FieldError{Field: "page_size"}
		}
		req.Size = parsed
	}
	return req, nil
}
