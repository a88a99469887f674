package impl

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// normalizeLimit 分页上限
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
