// Package system implements uploader.Clock with the wall clock.
package system

import "time"

// Clock returns the real time in UTC, so persisted fetch timestamps are
// comparable regardless of where a run happened.
type Clock struct{}

// New returns a system Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	return time.Now().UTC()
}
