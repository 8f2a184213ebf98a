// Package timer multiplexes one hardware alarm into a fixed table of
// one-shot deadlines, each raising an executor signal when it elapses.
//
// A task suspends for a duration by arming its signal and awaiting it:
//
//	if err := timers.After(sig, time.Second); err != nil {
//	    ctx.Exit(err)
//	}
//	return sig
//
// For drift-free periodic work use [Service.At] with deadlines computed from
// a fixed start time rather than from the moment of wakeup.
package timer

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/ardnew/softusb/executor"
	"github.com/ardnew/softusb/pkg"
)

// MaxAlarms is the capacity of the alarm table.
const MaxAlarms = 8

type alarm struct {
	sig      *executor.Signal
	deadline time.Duration
	armed    bool
}

// Service schedules signal deadlines on a Clock.
type Service struct {
	clock Clock
	fire  func()

	mu     sync.Mutex
	alarms [MaxAlarms]alarm
}

// New creates a timer service on the given clock.
func New(clock Clock) *Service {
	s := &Service{clock: clock}
	s.fire = s.expire
	return s
}

// Now returns the current time since boot.
func (s *Service) Now() time.Duration {
	return s.clock.Now()
}

// After arms sig to be raised once d has elapsed.
func (s *Service) After(sig *executor.Signal, d time.Duration) error {
	return s.At(sig, s.clock.Now()+d)
}

// At arms sig to be raised once the clock reaches deadline. Re-arming a
// signal replaces its previous deadline. A deadline that has already passed
// raises sig immediately. Returns pkg.ErrNoResources when the alarm table is
// full.
func (s *Service) At(sig *executor.Signal, deadline time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.alarms[:], func(a alarm) bool { return a.armed && a.sig == sig })
	if i < 0 {
		i = slices.IndexFunc(s.alarms[:], func(a alarm) bool { return !a.armed })
	}
	if i < 0 {
		pkg.LogWarn(pkg.ComponentTimer, "alarm table full", "capacity", MaxAlarms)
		return pkg.ErrNoResources
	}
	s.alarms[i] = alarm{sig: sig, deadline: deadline, armed: true}
	pkg.LogDebug(pkg.ComponentTimer, "alarm armed", "slot", i, "deadline", deadline)

	s.reprogram()
	return nil
}

// Cancel disarms sig. It is not an error if sig is not armed.
func (s *Service) Cancel(sig *executor.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.alarms[:], func(a alarm) bool { return a.armed && a.sig == sig }); i >= 0 {
		s.alarms[i].armed = false
	}
}

// Armed reports how many deadlines are pending.
func (s *Service) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.alarms {
		if a.armed {
			n++
		}
	}
	return n
}

// expire is the clock alarm handler.
func (s *Service) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reprogram()
}

// reprogram raises every due signal and points the clock alarm at the
// earliest remaining deadline. Must be called with s.mu held.
func (s *Service) reprogram() {
	now := s.clock.Now()

	var next time.Duration
	pending := false
	for i := range s.alarms {
		a := &s.alarms[i]
		if !a.armed {
			continue
		}
		if a.deadline <= now {
			a.armed = false
			a.sig.Raise()
			continue
		}
		if !pending || a.deadline < next {
			next = a.deadline
			pending = true
		}
	}

	if pending {
		s.clock.Schedule(next, s.fire)
	}
}
