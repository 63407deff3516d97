// Package clock abstracts time for components that arm timers, so debounce
// behavior can be tested without real sleeps.
package clock

import "time"

// Timer is the controllable subset of time.Timer used by the engine.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock provides current time and timer creation.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
