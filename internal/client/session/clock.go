package session

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from running if it has not started yet.
	// It does not wait for, nor guarantee against, a callback already in flight.
	Stop() bool
}

// Clock abstracts time so the scheduler can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
