package engine

import (
	"sync"
	"time"
)

// JobState is a job's position in the engine lifecycle as seen by external
// observers.
type JobState int

const (
	StatePending JobState = iota
	StateRunning
	StateSuccess
	StateFailure
	StateIgnored
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	case StateIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the job is done for good.
func (s JobState) Terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateIgnored
}

// trackerCapacity bounds how many job outcomes are remembered.
const trackerCapacity = 1000

// Tracker records state transitions so callers can await an outcome or ask
// whether a dependency has already failed. It remembers the last
// trackerCapacity jobs it has seen, oldest evicted first.
type Tracker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	states map[string]JobState
	order  []string
}

func NewTracker() *Tracker {
	t := &Tracker{states: make(map[string]JobState)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// OnStateChange records a transition and wakes anyone awaiting it.
func (t *Tracker) OnStateChange(jobID string, state JobState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, known := t.states[jobID]; !known {
		t.order = append(t.order, jobID)
		if len(t.order) > trackerCapacity {
			evicted := t.order[0]
			t.order = t.order[1:]
			delete(t.states, evicted)
		}
	}
	t.states[jobID] = state
	t.cond.Broadcast()
}

// LastState returns the most recent recorded state for the job, if any.
func (t *Tracker) LastState(jobID string) (JobState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[jobID]
	return state, ok
}

// HaveAnyFailed reports whether any of the given jobs is known to have
// terminally failed.
func (t *Tracker) HaveAnyFailed(jobIDs []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range jobIDs {
		if t.states[id] == StateFailure {
			return true
		}
	}
	return false
}

// AwaitTerminal blocks until the job reaches a terminal state or the
// timeout elapses. The second return is false on timeout.
func (t *Tracker) AwaitTerminal(jobID string, timeout time.Duration) (JobState, bool) {
	deadline := time.Now().Add(timeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if state, ok := t.states[jobID]; ok && state.Terminal() {
			return state, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return StatePending, false
		}

		timer := time.AfterFunc(remaining, t.cond.Broadcast)
		t.cond.Wait()
		timer.Stop()
	}
}
