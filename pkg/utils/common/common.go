package common

import (
	"context"
	"strings"
	"time"
)

// WaitForDuration waits for the given duration, checking ctx every tick.
// It returns false when the wait was cut short by cancellation.
func WaitForDuration(ctx context.Context, duration, tick time.Duration) bool {
	if duration <= 0 {
		return ctx.Err() == nil
	}
	if tick <= 0 {
		tick = duration
	}

	deadline := time.Now().Add(duration)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := tick
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
	}
}

// Contains check if the value is present in the slice
func Contains(val string, slice []string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}

// SubStringExistsInSlice checks if any element of the slice contains val
func SubStringExistsInSlice(val string, slice []string) bool {
	for _, s := range slice {
		if strings.Contains(s, val) {
			return true
		}
	}
	return false
}
