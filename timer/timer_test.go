package timer

import (
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softusb/executor"
	"github.com/ardnew/softusb/pkg"
)

func TestService_After(t *testing.T) {
	clock := NewManualClock()
	svc := New(clock)
	sig := executor.New().NewSignal()

	if err := svc.After(sig, time.Second); err != nil {
		t.Fatalf("After() error = %v", err)
	}

	clock.Advance(999 * time.Millisecond)
	if sig.Pending() {
		t.Fatal("signal raised before deadline")
	}
	clock.Advance(time.Millisecond)
	if !sig.Pending() {
		t.Fatal("signal not raised at deadline")
	}
	if n := svc.Armed(); n != 0 {
		t.Errorf("Armed() = %d, want 0", n)
	}
}

func TestService_Ordering(t *testing.T) {
	clock := NewManualClock()
	svc := New(clock)
	exec := executor.New()
	early, late := exec.NewSignal(), exec.NewSignal()

	svc.After(late, 3*time.Second)
	svc.After(early, time.Second)

	clock.Advance(time.Second)
	if !early.Pending() || late.Pending() {
		t.Fatalf("at 1s: early=%v late=%v, want true false", early.Pending(), late.Pending())
	}
	clock.Advance(2 * time.Second)
	if !late.Pending() {
		t.Error("at 3s: late signal not raised")
	}
}

func TestService_Rearm(t *testing.T) {
	clock := NewManualClock()
	svc := New(clock)
	sig := executor.New().NewSignal()

	svc.After(sig, time.Second)
	svc.After(sig, 5*time.Second)
	if n := svc.Armed(); n != 1 {
		t.Fatalf("Armed() = %d, want 1 after re-arm", n)
	}

	clock.Advance(time.Second)
	if sig.Pending() {
		t.Fatal("replaced deadline still fired")
	}
	clock.Advance(4 * time.Second)
	if !sig.Pending() {
		t.Error("new deadline did not fire")
	}
}

func TestService_PastDeadline(t *testing.T) {
	clock := NewManualClock()
	clock.Set(10 * time.Second)
	svc := New(clock)
	sig := executor.New().NewSignal()

	if err := svc.At(sig, 2*time.Second); err != nil {
		t.Fatalf("At() error = %v", err)
	}
	if !sig.Pending() {
		t.Error("past deadline did not raise immediately")
	}
}

func TestService_Cancel(t *testing.T) {
	clock := NewManualClock()
	svc := New(clock)
	sig := executor.New().NewSignal()

	svc.After(sig, time.Second)
	svc.Cancel(sig)
	svc.Cancel(sig)

	clock.Advance(2 * time.Second)
	if sig.Pending() {
		t.Error("cancelled alarm fired")
	}
}

func TestService_Full(t *testing.T) {
	clock := NewManualClock()
	svc := New(clock)
	exec := executor.New()

	for i := 0; i < MaxAlarms; i++ {
		if err := svc.After(exec.NewSignal(), time.Second); err != nil {
			t.Fatalf("After() #%d error = %v", i, err)
		}
	}
	if err := svc.After(exec.NewSignal(), time.Second); !errors.Is(err, pkg.ErrNoResources) {
		t.Errorf("After() on full table error = %v, want %v", err, pkg.ErrNoResources)
	}

	clock.Advance(time.Second)
	if err := svc.After(exec.NewSignal(), time.Second); err != nil {
		t.Errorf("After() after expiry error = %v", err)
	}
}

func TestManualClock_Monotonic(t *testing.T) {
	clock := NewManualClock()
	clock.Set(5 * time.Second)
	clock.Set(time.Second)
	if got := clock.Now(); got != 5*time.Second {
		t.Errorf("Now() = %v, want 5s", got)
	}
}

func TestSystemClock(t *testing.T) {
	svc := New(NewSystemClock())
	exec := executor.New()
	first, second := exec.NewSignal(), exec.NewSignal()

	svc.After(second, 20*time.Millisecond)
	svc.After(first, 5*time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for !(first.Pending() && second.Pending()) {
		if time.Now().After(deadline) {
			t.Fatalf("signals not raised: first=%v second=%v", first.Pending(), second.Pending())
		}
		time.Sleep(time.Millisecond)
	}
	if svc.Now() < 20*time.Millisecond {
		t.Errorf("Now() = %v, want >= 20ms", svc.Now())
	}
}
