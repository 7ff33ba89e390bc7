package pagination

import (
	"fmt"
	"strconv"

	"chatcall-backend/pkg/constants"
)

// Params is a normalized page request (1-based page)
type Params struct {
	Page  int
	Limit int
}

// New normalizes page and limit: page < 1 becomes 1, limit < 1 becomes the
// default page size and limit is capped at the max page size.
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	return Params{Page: page, Limit: limit}
}

// Parse reads page/limit query strings
func Parse(pageStr, limitStr string) (Params, error) {
	page, limit := 0, 0
	var err error
	if pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil {
			return Params{}, fmt.Errorf("invalid page parameter: %w", err)
		}
	}
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return Params{}, fmt.Errorf("invalid limit parameter: %w", err)
		}
	}
	return New(page, limit), nil
}

// Offset returns the number of rows to skip
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages returns ceil(total / limit)
func (p Params) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}
