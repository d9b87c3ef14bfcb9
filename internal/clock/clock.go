// Package clock abstracts wall time and delayed callbacks so response windows
// can be driven deterministically in tests.
package clock

import "time"

// Timer is a cancellable delayed callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is a Clock backed by the time package. Callbacks run on their own goroutine.
type Real struct{}

// NewReal returns the system clock.
func NewReal() Real {
	return Real{}
}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc schedules f after d using time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
