package session

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled callback. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d. It is the only time source of a Countdown.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// WallClock schedules on real time.
type WallClock struct{}

func (WallClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// TimerState is the lifecycle of a Countdown.
type TimerState string

const (
	TimerIdle      TimerState = "idle"
	TimerRunning   TimerState = "running"
	TimerExpired   TimerState = "expired"
	TimerCancelled TimerState = "cancelled"
)

const tickInterval = time.Second

// Countdown decrements once per tick and calls onExpire exactly once when it reaches zero.
//
// Every tick re-arms the next one, so a process that was suspended resumes with a single
// tick instead of a backlog. Callbacks always run on the scheduler's goroutine with no
// lock held; callers may hold their own locks while calling Countdown methods.
type Countdown struct {
	mu        sync.Mutex
	sched     Scheduler
	state     TimerState
	remaining int
	gen       uint64
	pending   Stopper

	onTick   func(remaining int)
	onExpire func()
}

// NewCountdown builds an idle countdown. Both callbacks are optional.
func NewCountdown(sched Scheduler, onTick func(int), onExpire func()) *Countdown {
	if sched == nil {
		sched = WallClock{}
	}
	return &Countdown{
		sched:    sched,
		state:    TimerIdle,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start arms the countdown with totalSeconds. It only acts on an idle countdown and reports
// whether it did; starting a running countdown keeps its progress. A zero total expires on the
// first scheduled callback.
func (c *Countdown) Start(totalSeconds int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != TimerIdle {
		return false
	}

	c.remaining = max(totalSeconds, 0)
	c.state = TimerRunning
	if c.remaining == 0 {
		c.arm(0)
	} else {
		c.arm(tickInterval)
	}
	return true
}

// Cancel stops an idle or running countdown. A cancelled countdown never expires.
func (c *Countdown) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != TimerRunning && c.state != TimerIdle {
		return false
	}
	c.state = TimerCancelled
	c.disarm()
	return true
}

// Resume restarts a cancelled countdown from the seconds it had left.
func (c *Countdown) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != TimerCancelled || c.remaining <= 0 {
		return false
	}
	c.state = TimerRunning
	c.arm(tickInterval)
	return true
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) State() TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// arm schedules the next tick. Caller holds c.mu.
func (c *Countdown) arm(d time.Duration) {
	c.gen++
	gen := c.gen
	c.pending = c.sched.AfterFunc(d, func() { c.tick(gen) })
}

// disarm invalidates any scheduled tick. Caller holds c.mu.
func (c *Countdown) disarm() {
	c.gen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Countdown) tick(gen uint64) {
	c.mu.Lock()
	if c.state != TimerRunning || gen != c.gen {
		c.mu.Unlock()
		return
	}

	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		c.state = TimerExpired
		c.pending = nil
	} else {
		c.arm(tickInterval)
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired && c.onExpire != nil {
		c.onExpire()
	}
}
