package engine

import "time"

// Clock supplies the current time to the sync engine.
//
// Attempt timestamps and durations come from here rather than directly
// from time.Now, so tests can pin the clock and assert exact values.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall-clock implementation used in production.
func SystemClock() Clock {
	return systemClock{}
}
