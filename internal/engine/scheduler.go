package engine

import "time"

// Scheduler is the engine's hook into whatever wake-up facility the
// surrounding platform offers: "give the controller a chance to run
// at-or-after this delay, once these constraints look satisfiable."
// Scheduling is advisory; the controller's own wait/notify loop is the real
// dispatch mechanism while the process is alive.
type Scheduler interface {
	Schedule(delay time.Duration, constraintKeys []string)
}

// TimerScheduler wakes the controller in-process once the delay elapses.
// It ignores constraint keys: the controller re-checks constraints on every
// eligibility pass anyway. The flip side is that a job gated only on a
// constraint is re-examined on the next wake-up, not the moment the
// constraint becomes satisfied. The worker process covers that with its
// periodic RefreshFromStore tick; other embedders relying on constraint-gated
// jobs should call WakeUp on a timer of their own.
type TimerScheduler struct {
	wake func()
}

func NewTimerScheduler(wake func()) *TimerScheduler {
	return &TimerScheduler{wake: wake}
}

func (s *TimerScheduler) Schedule(delay time.Duration, _ []string) {
	if delay < 0 {
		delay = 0
	}
	// AfterFunc keeps the wake off the caller's goroutine; Schedule is
	// called with the controller lock held.
	time.AfterFunc(delay, s.wake)
}
