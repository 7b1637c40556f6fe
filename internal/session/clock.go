package session

import "time"

// Clock supplies "now" for round timestamps and reaction times.
type Clock interface {
	Now() time.Time
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The preview countdown is the only user.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock and SystemScheduler are backed by the time package.
var (
	SystemClock     Clock     = systemClock{}
	SystemScheduler Scheduler = systemScheduler{}
)
