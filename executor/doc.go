// Package executor implements a cooperative, single-threaded task scheduler
// that runs without allocating after startup.
//
// Tasks are explicit state machines. Each call to [Task.Poll] advances a task
// to its next await point and returns the [Signal] it waits on. The executor
// resumes a task only when that signal has been raised, and clears the signal
// before resuming it. Signals are raised from event sources (transport
// interrupts, timer alarms) through [Signal.Raise], which is safe to call
// from any goroutine.
//
//	exec := executor.New()
//	sig := exec.NewSignal()
//	exec.Spawn(task)
//	err := exec.Run(ctx) // returns only on a fatal error or cancellation
//
// There is no preemption and no priority. A task that never awaits starves
// the others; [Executor.SetStepBudget] reports such steps without stopping
// them.
package executor
