package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdown_TicksDownAndExpiresOnce(t *testing.T) {
	sched := &manualScheduler{}
	var ticks []int
	var expired int
	cd := NewCountdown(sched, func(r int) { ticks = append(ticks, r) }, func() { expired++ })

	if !cd.Start(3) {
		t.Fatalf("Start on idle countdown returned false")
	}
	if got := sched.fire(10); got != 3 {
		t.Fatalf("fired %d callbacks, want 3", got)
	}

	want := []int{2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}
	if expired != 1 {
		t.Fatalf("expired %d times, want 1", expired)
	}
	if cd.State() != TimerExpired {
		t.Fatalf("state = %s, want %s", cd.State(), TimerExpired)
	}
}

func TestCountdown_StartWhileRunningKeepsProgress(t *testing.T) {
	sched := &manualScheduler{}
	cd := NewCountdown(sched, nil, nil)

	cd.Start(60)
	sched.fire(5)
	if cd.Start(60) {
		t.Fatalf("second Start reported that it acted")
	}
	if got := cd.Remaining(); got != 55 {
		t.Fatalf("remaining = %d, want 55", got)
	}
	if got := len(sched.live()); got != 1 {
		t.Fatalf("live callbacks = %d, want 1", got)
	}
}

func TestCountdown_EachTickArmsOneDelay(t *testing.T) {
	sched := &manualScheduler{}
	cd := NewCountdown(sched, nil, nil)
	cd.Start(3)

	for i := 0; i < 2; i++ {
		live := sched.live()
		if len(live) != 1 {
			t.Fatalf("step %d: live callbacks = %d, want 1", i, len(live))
		}
		if live[0].delay != time.Second {
			t.Fatalf("step %d: delay = %s, want 1s", i, live[0].delay)
		}
		sched.fireNext()
	}
}

func TestCountdown_CancelNeverExpires(t *testing.T) {
	sched := &manualScheduler{}
	var expired int
	cd := NewCountdown(sched, nil, func() { expired++ })

	cd.Start(2)
	stale := sched.live()[0]
	if !cd.Cancel() {
		t.Fatalf("Cancel on running countdown returned false")
	}

	// A callback that escaped Stop must still be ignored.
	stale.f()
	stale.f()

	if expired != 0 {
		t.Fatalf("cancelled countdown expired %d times", expired)
	}
	if cd.State() != TimerCancelled {
		t.Fatalf("state = %s, want %s", cd.State(), TimerCancelled)
	}
	if cd.Remaining() != 2 {
		t.Fatalf("remaining = %d, want 2", cd.Remaining())
	}
	if cd.Start(5) {
		t.Fatalf("Start after Cancel should be a no-op")
	}
}

func TestCountdown_ResumeContinuesFromRemaining(t *testing.T) {
	sched := &manualScheduler{}
	var expired int
	cd := NewCountdown(sched, nil, func() { expired++ })

	cd.Start(3)
	sched.fireNext()
	stale := sched.live()[0]
	cd.Cancel()

	if !cd.Resume() {
		t.Fatalf("Resume after Cancel returned false")
	}
	stale.f()
	if cd.Remaining() != 2 {
		t.Fatalf("stale tick changed remaining to %d", cd.Remaining())
	}

	sched.fire(10)
	if cd.Remaining() != 0 || expired != 1 {
		t.Fatalf("remaining = %d expired = %d, want 0 and 1", cd.Remaining(), expired)
	}
	if cd.Resume() {
		t.Fatalf("Resume on expired countdown returned true")
	}
}

func TestCountdown_ZeroTotalExpiresOnFirstCallback(t *testing.T) {
	sched := &manualScheduler{}
	var expired int
	cd := NewCountdown(sched, nil, func() { expired++ })

	cd.Start(0)
	live := sched.live()
	if len(live) != 1 || live[0].delay != 0 {
		t.Fatalf("expected one immediate callback, got %d", len(live))
	}
	sched.fire(5)
	if expired != 1 {
		t.Fatalf("expired %d times, want 1", expired)
	}
}

func TestCountdown_ConcurrentZeroCrossingsExpireOnce(t *testing.T) {
	sched := &manualScheduler{}
	var expired atomic.Int32
	cd := NewCountdown(sched, nil, func() { expired.Add(1) })

	cd.Start(1)
	last := sched.live()[0]

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last.f()
		}()
	}
	wg.Wait()

	if got := expired.Load(); got != 1 {
		t.Fatalf("expired %d times, want 1", got)
	}
}

func TestCountdown_CancelFromIdle(t *testing.T) {
	cd := NewCountdown(&manualScheduler{}, nil, nil)
	if !cd.Cancel() {
		t.Fatalf("Cancel on idle countdown returned false")
	}
	if cd.Cancel() {
		t.Fatalf("second Cancel returned true")
	}
}
