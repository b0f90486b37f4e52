// utils/pagination.go
package utils

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ClampPage normalizes page/page_size query values: page starts at 1,
// size defaults to 20 and is capped at 100.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

// TotalPages computes the page count for a result set.
func TotalPages(totalItems int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((totalItems + int64(size) - 1) / int64(size))
}
