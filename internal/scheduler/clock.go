package scheduler

import "time"

// Timer is an armed callback that can be stopped before it fires
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and timer arming. The wall clock is used in
// production; tests inject a manual clock to drive fires deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WallClock returns the real-time clock
func WallClock() Clock { return wallClock{} }
