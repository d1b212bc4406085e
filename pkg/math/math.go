package math

import "time"

// Maximum calculates the maximum value among two durations
func Maximum(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

//Minimum calculates the minimum value among two durations
func Minimum(a, b time.Duration) time.Duration {
	if a > b {
		return b
	}
	return a
}

// MinimumPositive returns the smaller of a and b, ignoring a non-positive b
func MinimumPositive(a, b time.Duration) time.Duration {
	if b <= 0 {
		return a
	}
	return Minimum(a, b)
}

//Percentage returns part as a percentage of total, clamped to [0, 100]
func Percentage(part, total time.Duration) float64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	if part >= total {
		return 100
	}
	return float64(part) / float64(total) * 100
}
