package repository

// Pagination defaults shared by every list endpoint.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is an offset pagination request.
type Page struct {
	Page  int
	Limit int
}

// Normalize replaces out of range values with the defaults.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// Result is one page of rows plus the total number of matching rows.
type Result[T any] struct {
	Rows  []T   `json:"rows"`
	Total int64 `json:"total"`
}
