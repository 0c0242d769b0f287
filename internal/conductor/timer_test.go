package conductor

import (
	"sync/atomic"
	"testing"
	"time"
)

// The clamp pulls short test durations up to a minute, so these tests
// drive the timer through its internals instead of waiting for real
// expiry.

// fireNow delivers the current countdown's expiry callback.
func fireNow(timer *TurnTimer) {
	timer.mu.Lock()
	gen := timer.gen
	timer.mu.Unlock()
	timer.expire(gen)
}

func TestTurnTimerFiresOnce(t *testing.T) {
	var fires int32
	timer := NewTurnTimer(time.Minute, func() {
		atomic.AddInt32(&fires, 1)
	})
	timer.Start()

	fireNow(timer)
	fireNow(timer)
	fireNow(timer)

	if got := atomic.LoadInt32(&fires); got != 1 {
		t.Fatalf("expected exactly one fire, got %d", got)
	}
}

func TestTurnTimerResetRearms(t *testing.T) {
	var fires int32
	timer := NewTurnTimer(time.Minute, func() {
		atomic.AddInt32(&fires, 1)
	})
	timer.Start()
	fireNow(timer)
	if got := atomic.LoadInt32(&fires); got != 1 {
		t.Fatalf("expected one fire before reset, got %d", got)
	}

	// Reset clears the fired latch so the next countdown can fire again.
	timer.Reset()
	fireNow(timer)
	if got := atomic.LoadInt32(&fires); got != 2 {
		t.Fatalf("expected a second fire after reset, got %d", got)
	}
}

func TestTurnTimerResetCancelsDispatchedExpire(t *testing.T) {
	var fires int32
	timer := NewTurnTimer(time.Minute, func() {
		atomic.AddInt32(&fires, 1)
	})
	timer.Start()

	// A callback already dispatched when Reset runs carries the previous
	// generation and must be discarded.
	timer.mu.Lock()
	stale := timer.gen
	timer.mu.Unlock()
	timer.Reset()

	timer.expire(stale)
	if got := atomic.LoadInt32(&fires); got != 0 {
		t.Fatalf("stale countdown fired after reset, got %d", got)
	}

	fireNow(timer)
	if got := atomic.LoadInt32(&fires); got != 1 {
		t.Fatalf("fresh countdown should fire once, got %d", got)
	}
}

func TestTurnTimerStopSuppressesFire(t *testing.T) {
	var fires int32
	timer := NewTurnTimer(time.Minute, func() {
		atomic.AddInt32(&fires, 1)
	})
	timer.Start()
	timer.Stop()

	fireNow(timer)
	if got := atomic.LoadInt32(&fires); got != 0 {
		t.Fatalf("stopped timer should not fire, got %d", got)
	}
	if rem := timer.Remaining(); rem != 0 {
		t.Fatalf("stopped timer should report no remaining time, got %v", rem)
	}
}

func TestTurnTimerClampsDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 3 * time.Minute},
		{10 * time.Second, time.Minute},
		{5 * time.Minute, 5 * time.Minute},
		{2 * time.Hour, 30 * time.Minute},
	}
	for _, tt := range tests {
		timer := NewTurnTimer(tt.in, nil)
		if got := timer.Duration(); got != tt.want {
			t.Errorf("duration for %v: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTurnTimerProgress(t *testing.T) {
	timer := NewTurnTimer(time.Minute, nil)
	if p := timer.Progress(); p != 0 {
		t.Fatalf("unstarted timer progress should be 0, got %f", p)
	}
	timer.Start()
	if p := timer.Progress(); p <= 0.9 || p > 1 {
		t.Fatalf("fresh timer progress should be near 1, got %f", p)
	}
}

func TestTimerRegistryReplacesExisting(t *testing.T) {
	reg := newTimerRegistry()
	first := reg.arm("s1", time.Minute, nil)
	second := reg.arm("s1", time.Minute, nil)
	if first == second {
		t.Fatal("re-arming should install a fresh timer")
	}
	if first.Remaining() != 0 {
		t.Fatal("replaced timer should be stopped")
	}

	got, ok := reg.get("s1")
	if !ok || got != second {
		t.Fatal("registry should hold the replacement timer")
	}

	reg.drop("s1")
	if _, ok := reg.get("s1"); ok {
		t.Fatal("dropped timer should be gone")
	}
	if second.Remaining() != 0 {
		t.Fatal("dropped timer should be stopped")
	}
}
