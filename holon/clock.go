package holon

import "time"

// Clock abstracts time so sweepers, timers, and TTL checks are testable
// without sleeping in real time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer mirrors the subset of *time.Timer the core needs, so AfterFunc-based
// state/saga timeouts can be cancelled uniformly.
type Timer interface {
	Stop() bool
}

// realClock is the production Clock, backed directly by the time package.
type realClock struct{}

// RealClock is the default Clock used outside of tests.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time                     { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
