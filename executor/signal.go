package executor

import "sync/atomic"

// Signal is a binary wake condition bound to one executor.
//
// Raise may be called from any goroutine, including ones standing in for
// interrupt handlers. It only sets the pending flag and nudges the executor;
// the waiting task observes the event the next time it is polled. Raising an
// already pending signal is a no-op, so bursts coalesce into one wakeup.
type Signal struct {
	pending atomic.Bool
	exec    *Executor

	// owner is the slot index of the waiting task. Only the executor touches it.
	owner int
}

// Raise marks the signal pending and wakes the executor.
func (s *Signal) Raise() {
	s.pending.Store(true)
	s.exec.wake()
}

// Pending reports whether the signal is raised and not yet consumed.
func (s *Signal) Pending() bool {
	return s.pending.Load()
}

// take consumes a pending raise.
func (s *Signal) take() bool {
	return s.pending.CompareAndSwap(true, false)
}
