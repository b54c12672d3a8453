// Package timeutil carries the timer-reuse helpers used by bounded waits.
package timeutil

import "time"

// ResetTimer stops, drains and re-arms a timer for reuse inside a wait loop.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

// DrainTimer consumes a pending tick, if any, without blocking.
func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// NewStopped returns a timer that is armed but guaranteed not to fire until
// reset. Useful when a select needs a timer case that may never be used.
func NewStopped() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		DrainTimer(t)
	}
	return t
}
