// Package clock abstracts time so polling loops can be driven in tests.
package clock

import "time"

// Clock is the subset of the time package the executor and quote
// services depend on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real is a Clock backed by the time package.
type Real struct{}

// New returns the wall clock.
func New() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
