// Package clock supplies the current time so date-dependent logic stays
// testable.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Date formats t as a YYYY-MM-DD string in t's location.
func Date(t time.Time) string {
	return t.Format("2006-01-02")
}
