package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context. A page
// query parameter (1-based) takes precedence over offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if page, err := strconv.Atoi(c.QueryParam("page")); err == nil && page > 0 {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Response wraps a paginated list response.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	HasMore    bool        `json:"has_more"`
	NextOffset *int        `json:"next_offset,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	r := &Response{
		Data:   data,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	p := Params{Limit: limit, Offset: offset}
	if p.HasNext(total) {
		next := offset + limit
		r.HasMore = true
		r.NextOffset = &next
	}
	return r
}
