package networking

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Backoff and keep-alive timers go through it.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
