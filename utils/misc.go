package utils

// MinInt returns the smaller of x or y.
func MinInt(x, y int64) int64 {
	if x > y {
		return y
	}
	return x
}
