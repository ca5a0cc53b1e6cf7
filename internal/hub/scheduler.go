package hub

import "time"

// Scheduler runs a function once after a delay. Scheduled callbacks race
// with user action by design and must re-validate state before acting.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Task
}

// Task is a pending scheduled callback.
type Task interface {
	// Cancel stops the task and reports whether it was still pending.
	Cancel() bool
}

// TimerScheduler schedules on real timers.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) Task {
	return timerTask{timer: time.AfterFunc(d, fn)}
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Cancel() bool {
	return t.timer.Stop()
}
