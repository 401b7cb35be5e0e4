package property

// DefaultPageSize applies when a list tool is called without a limit.
const DefaultPageSize = 25

// pageInfo tells the model whether more results exist past the page.
type pageInfo struct {
	TotalCount int  `json:"total_count"`
	Truncated  bool `json:"truncated"`
}

// page returns items[offset:offset+limit], clamped to the slice bounds.
// A non-positive limit means DefaultPageSize; a negative offset means 0.
func page[T any](items []T, offset, limit int) ([]T, pageInfo) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	total := len(items)
	start := min(offset, total)
	end := total
	if limit < total-start {
		end = start + limit
	}
	return items[start:end], pageInfo{TotalCount: total, Truncated: end < total}
}
