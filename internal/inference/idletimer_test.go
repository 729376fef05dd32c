package inference

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestIdleTimer_FiresAfterDuration(t *testing.T) {
	var fired atomic.Bool
	it := NewIdleTimer(20*time.Millisecond, func() { fired.Store(true) })
	defer it.Stop()

	time.Sleep(60 * time.Millisecond)

	if !fired.Load() {
		t.Error("expected idle timer to fire after its duration elapsed")
	}
}

func TestIdleTimer_TouchDefersFire(t *testing.T) {
	var fired atomic.Bool
	it := NewIdleTimer(40*time.Millisecond, func() { fired.Store(true) })
	defer it.Stop()

	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		it.Touch()
	}

	if fired.Load() {
		t.Error("expected repeated Touch calls to prevent the timer firing")
	}

	time.Sleep(60 * time.Millisecond)
	if !fired.Load() {
		t.Error("expected timer to fire once Touch calls stop")
	}
}

func TestIdleTimer_StopPreventsFire(t *testing.T) {
	var fired atomic.Bool
	it := NewIdleTimer(10*time.Millisecond, func() { fired.Store(true) })
	it.Stop()

	time.Sleep(40 * time.Millisecond)

	if fired.Load() {
		t.Error("expected Stop to prevent the callback from firing")
	}
}
