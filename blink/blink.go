// Package blink toggles a digital output on a fixed cadence.
//
// The task drives the pin Low when it first runs and flips it once per
// interval after that. Deadlines are computed from the start time, so a late
// or spurious wakeup neither skips a toggle nor adds one.
package blink

import (
	"time"

	"github.com/ardnew/softusb/executor"
	"github.com/ardnew/softusb/pkg"
	"github.com/ardnew/softusb/timer"
)

// DefaultInterval is the toggle period.
const DefaultInterval = time.Second

type resume uint8

const (
	resumeStart resume = iota
	resumeTick
)

// Task is the blink executor task.
type Task struct {
	pin      Pin
	timers   *timer.Service
	sig      *executor.Signal
	interval time.Duration

	// Saved across await points.
	state    resume
	start    time.Duration
	deadline time.Duration
	ticks    uint64
	level    Level
}

// New creates a blink task that toggles pin every interval. sig must be
// owned by this task alone.
func New(pin Pin, timers *timer.Service, sig *executor.Signal, interval time.Duration) *Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Task{
		pin:      pin,
		timers:   timers,
		sig:      sig,
		interval: interval,
	}
}

// Name implements executor.Task.
func (t *Task) Name() string { return "blink" }

// Poll implements executor.Task.
func (t *Task) Poll(ctx *executor.Context) *executor.Signal {
	switch t.state {
	case resumeStart:
		t.start = t.timers.Now()
	case resumeTick:
		if t.timers.Now() < t.deadline {
			// Woken early; the alarm is still armed.
			return t.sig
		}
	}

	t.ticks++
	if t.ticks%2 == 0 {
		t.level = High
	} else {
		t.level = Low
	}
	t.pin.Set(t.level)

	t.deadline = t.start + time.Duration(t.ticks)*t.interval
	if err := t.timers.At(t.sig, t.deadline); err != nil {
		pkg.LogError(pkg.ComponentApp, "blink cannot arm timer", "error", err)
		ctx.Exit(err)
		return nil
	}
	t.state = resumeTick
	return t.sig
}

// Level returns the level most recently driven.
func (t *Task) Level() Level { return t.level }

// Toggles returns how many times the pin has been driven.
func (t *Task) Toggles() uint64 { return t.ticks }
