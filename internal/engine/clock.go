package engine

import "time"

// Clock abstracts time.Now() to allow deterministic testing.
// The Resolver uses it to answer "what time is it in zone X".
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
