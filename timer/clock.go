package timer

import (
	"sync"
	"time"
)

// Clock is a monotonic time source with a single alarm compare register.
//
// Now returns the time elapsed since boot. Schedule programs the alarm to
// call fire once Now reaches at, replacing any previously programmed alarm.
// fire runs in the clock's interrupt context and must not block.
type Clock interface {
	Now() time.Duration
	Schedule(at time.Duration, fire func())
}

// SystemClock is a Clock backed by the host's monotonic clock. It reuses a
// single timer for every alarm.
type SystemClock struct {
	start time.Time

	mu    sync.Mutex
	timer *time.Timer
	fire  func()
}

// NewSystemClock returns a clock whose epoch is the moment of the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.start)
}

// Schedule programs the alarm. A deadline already in the past fires as soon
// as possible.
func (c *SystemClock) Schedule(at time.Duration, fire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fire = fire
	d := at - c.Now()
	if c.timer == nil {
		c.timer = time.AfterFunc(d, c.expire)
		return
	}
	c.timer.Stop()
	c.timer.Reset(d)
}

func (c *SystemClock) expire() {
	c.mu.Lock()
	fire := c.fire
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// ManualClock is a Clock that only moves when told to. Alarms fire
// synchronously from Advance and Set, outside the clock's lock.
type ManualClock struct {
	mu    sync.Mutex
	now   time.Duration
	at    time.Duration
	fire  func()
	armed bool
}

// NewManualClock returns a clock stopped at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Schedule programs the alarm.
func (c *ManualClock) Schedule(at time.Duration, fire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = at
	c.fire = fire
	c.armed = true
}

// Advance moves time forward by d and fires the alarm while it is due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	t := c.now + d
	c.mu.Unlock()
	c.Set(t)
}

// Set moves time to t and fires the alarm while it is due. Time never moves
// backwards.
func (c *ManualClock) Set(t time.Duration) {
	c.mu.Lock()
	if t > c.now {
		c.now = t
	}
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if !c.armed || c.at > c.now {
			c.mu.Unlock()
			return
		}
		c.armed = false
		fire := c.fire
		c.mu.Unlock()

		fire()
	}
}
