package pagination

import (
	"fmt"
	"strconv"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any listing can request.
	MaxLimit = 100
)

// Params holds page-based pagination inputs from controllers or services.
// Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize returns params with the page floored at 1 and the limit bounded.
func (p Params) Normalize() Params {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return Params{Page: page, Limit: NormalizeLimit(p.Limit)}
}

// Offset is the number of rows preceding the page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// String renders a stable representation usable in cache keys.
func (p Params) String() string {
	n := p.Normalize()
	return fmt.Sprintf("page=%d&limit=%d", n.Page, n.Limit)
}

// ParseParams reads page and limit query values, ignoring blanks.
func ParseParams(page, limit string) (Params, error) {
	var params Params
	if page != "" {
		v, err := strconv.Atoi(page)
		if err != nil {
			return Params{}, fmt.Errorf("invalid page: %w", err)
		}
		params.Page = v
	}
	if limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil {
			return Params{}, fmt.Errorf("invalid limit: %w", err)
		}
		params.Limit = v
	}
	return params.Normalize(), nil
}
