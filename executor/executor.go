package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ardnew/softusb/pkg"
)

// MaxTasks is the capacity of the task table.
const MaxTasks = 8

// noOwner marks a signal no task is waiting on.
const noOwner = -1

// Task is a suspendable unit of execution.
//
// Poll runs the task from its saved resumption point to its next suspension
// point and returns the signal it now awaits. Returning nil yields: the task
// stays runnable and is polled again on the next pass. A task reports
// termination through [Context.Exit]; tasks are expected to run forever, so
// the executor treats termination as fatal.
type Task interface {
	Name() string
	Poll(ctx *Context) *Signal
}

// Context is handed to a task on every poll. There is one per task slot.
type Context struct {
	name   string
	exited bool
	cause  error
}

// TaskName returns the name of the running task.
func (c *Context) TaskName() string { return c.name }

// Exit reports that the task has terminated with the given cause.
func (c *Context) Exit(cause error) {
	c.exited = true
	c.cause = cause
}

// Stats holds executor counters.
type Stats struct {
	Polls    uint64        // Task steps executed
	Parks    uint64        // Times the run loop waited for a wakeup
	Overruns uint64        // Steps longer than the step budget
	MaxStep  time.Duration // Longest observed step
}

type slot struct {
	task    Task
	ctx     Context
	wait    *Signal
	started bool
}

// Executor runs a fixed set of cooperative tasks on one thread of control.
type Executor struct {
	tasks [MaxTasks]slot
	count int

	started atomic.Bool
	wakeCh  chan struct{}

	budget time.Duration
	now    func() time.Time
	stats  Stats
}

// New creates an executor with an empty task table.
func New() *Executor {
	return &Executor{
		wakeCh: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// SetStepBudget sets the longest a single task step may run before it is
// reported as an overrun. Zero disables the check. Overruns are logged and
// counted; tasks are never preempted.
func (e *Executor) SetStepBudget(d time.Duration) {
	e.budget = d
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	return e.stats
}

// NewSignal returns a signal bound to this executor's wake line.
func (e *Executor) NewSignal() *Signal {
	return &Signal{exec: e, owner: noOwner}
}

// Spawn registers a task. Tasks may only be registered before the executor
// starts polling.
func (e *Executor) Spawn(t Task) error {
	if e.started.Load() {
		return pkg.ErrAlreadyRunning
	}
	if e.count >= MaxTasks {
		return pkg.ErrNoResources
	}
	e.tasks[e.count] = slot{task: t, ctx: Context{name: t.Name()}}
	e.count++
	pkg.LogDebug(pkg.ComponentExecutor, "task spawned", "task", t.Name(), "slot", e.count-1)
	return nil
}

// PollOnce runs every runnable task once, in registration order, and returns
// how many ran. A task is runnable if it has never run, yielded on its last
// step, or its awaited signal is pending. The signal is cleared before the
// task resumes.
func (e *Executor) PollOnce() (int, error) {
	e.started.Store(true)

	ran := 0
	for i := 0; i < e.count; i++ {
		s := &e.tasks[i]
		if s.started && s.wait != nil && !s.wait.take() {
			continue
		}
		s.started = true

		begin := e.now()
		next := s.task.Poll(&s.ctx)
		e.account(s, e.now().Sub(begin))
		ran++

		if s.ctx.exited {
			if s.ctx.cause != nil {
				return ran, fmt.Errorf("task %q: %w: %w", s.ctx.name, pkg.ErrTaskExited, s.ctx.cause)
			}
			return ran, fmt.Errorf("task %q: %w", s.ctx.name, pkg.ErrTaskExited)
		}
		if err := e.await(i, next); err != nil {
			return ran, err
		}
	}
	return ran, nil
}

// Run polls tasks until a fatal condition occurs or ctx is cancelled. When no
// task is runnable it parks until any signal is raised.
func (e *Executor) Run(ctx context.Context) error {
	pkg.LogInfo(pkg.ComponentExecutor, "executor started", "tasks", e.count)
	for {
		n, err := e.PollOnce()
		if err != nil {
			pkg.LogError(pkg.ComponentExecutor, "executor halted", "error", err)
			return err
		}
		if n > 0 {
			continue
		}

		e.stats.Parks++
		select {
		case <-e.wakeCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// await records that slot i now waits on sig, releasing the signal it waited
// on before.
func (e *Executor) await(i int, sig *Signal) error {
	s := &e.tasks[i]
	if sig == s.wait {
		return nil
	}
	if sig != nil {
		if sig.exec != e {
			return fmt.Errorf("task %q: %w: signal bound to another executor", s.ctx.name, pkg.ErrSignalBusy)
		}
		if sig.owner != noOwner && sig.owner != i {
			return fmt.Errorf("task %q: %w: held by %q", s.ctx.name, pkg.ErrSignalBusy, e.tasks[sig.owner].ctx.name)
		}
		sig.owner = i
	}
	if s.wait != nil {
		s.wait.owner = noOwner
	}
	s.wait = sig
	return nil
}

func (e *Executor) account(s *slot, d time.Duration) {
	e.stats.Polls++
	if d > e.stats.MaxStep {
		e.stats.MaxStep = d
	}
	if e.budget > 0 && d > e.budget {
		e.stats.Overruns++
		pkg.LogWarn(pkg.ComponentExecutor, "task step exceeded budget",
			"task", s.ctx.name, "step", d, "budget", e.budget)
	}
}

// wake nudges the run loop. Never blocks.
func (e *Executor) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}
