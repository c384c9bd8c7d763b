package common

// ClampLimit bounds a requested page size to the backend maximum. Zero and
// negative requests use the maximum.
func ClampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
