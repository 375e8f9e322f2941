package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the run state of a Timer. Exactly one state holds at a time.
type State string

const (
	// StateIdle means never started or explicitly reset.
	StateIdle State = "idle"
	// StateRunning means the clock is advancing.
	StateRunning State = "running"
	// StatePaused means the timer was running and is now held.
	StatePaused State = "paused"
)

// DefaultDuration is the duration a freshly booted timer counts down from.
const DefaultDuration = 3 * time.Minute

// Snapshot is a consistent read of the timer at a single instant.
type Snapshot struct {
	State     State
	Duration  time.Duration
	Elapsed   time.Duration
	Remaining time.Duration
	Expired   bool
}

// Timer tracks elapsed and remaining time against a target duration.
//
// All time reads go through the injected clock. The real clock hands out
// time.Time values carrying a monotonic reading, so subtracting them is
// immune to wall-clock adjustments.
type Timer struct {
	mu sync.RWMutex

	clock       clockwork.Clock
	duration    time.Duration
	state       State
	startRef    time.Time     // valid only while running
	accumulated time.Duration // valid while paused or idle
}

// New creates an idle timer with a zero duration.
// Pass nil to use the real clock.
func New(clock clockwork.Clock) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{
		clock: clock,
		state: StateIdle,
	}
}

// SetDuration sets the target duration. It does not change the run state.
func (t *Timer) SetDuration(minutes, seconds, millis int) {
	d := time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond

	t.mu.Lock()
	t.duration = d
	t.mu.Unlock()
}

// Start runs the timer, resuming from any accumulated elapsed time.
// Starting a running timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateRunning {
		return
	}
	t.startRef = t.clock.Now().Add(-t.accumulated)
	t.state = StateRunning
}

// Stop holds the timer, capturing elapsed time. Stopping a timer that is
// not running is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return
	}
	t.accumulated = t.clock.Now().Sub(t.startRef)
	t.state = StatePaused
}

// Reset returns the timer to idle with zero elapsed time.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accumulated = 0
	t.startRef = time.Time{}
	t.state = StateIdle
}

// Elapsed returns the elapsed time as of now.
func (t *Timer) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.elapsedLocked()
}

// Remaining returns the time left before expiry, never negative.
func (t *Timer) Remaining() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return remaining(t.duration, t.elapsedLocked())
}

// IsExpired reports whether elapsed time has reached the duration.
func (t *Timer) IsExpired() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.elapsedLocked() >= t.duration
}

// Duration returns the target duration.
func (t *Timer) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.duration
}

// State returns the current run state.
func (t *Timer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsRunning reports whether the countdown is advancing.
func (t *Timer) IsRunning() bool { return t.State() == StateRunning }

// IsPaused reports whether the countdown is frozen mid-run.
func (t *Timer) IsPaused() bool { return t.State() == StatePaused }

// IsIdle reports whether the timer is stopped at its full duration.
func (t *Timer) IsIdle() bool { return t.State() == StateIdle }

// Snapshot reads every derived value against a single clock reading.
func (t *Timer) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	elapsed := t.elapsedLocked()
	return Snapshot{
		State:     t.state,
		Duration:  t.duration,
		Elapsed:   elapsed,
		Remaining: remaining(t.duration, elapsed),
		Expired:   elapsed >= t.duration,
	}
}

func (t *Timer) elapsedLocked() time.Duration {
	if t.state == StateRunning {
		return t.clock.Now().Sub(t.startRef)
	}
	return t.accumulated
}

func remaining(duration, elapsed time.Duration) time.Duration {
	if elapsed >= duration {
		return 0
	}
	return duration - elapsed
}
