package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultYield is how long Run sleeps between ticks.
const DefaultYield = 10 * time.Millisecond

// TaskFunc is a periodic task. now is the tick time shared by every task
// run in the same tick.
type TaskFunc func(now time.Time)

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	lastRun  time.Time
	ran      bool
}

// Scheduler runs interval-gated tasks cooperatively on a single goroutine.
// Tasks must not block; a slow task delays every task behind it.
type Scheduler struct {
	clock clockwork.Clock
	yield time.Duration
	tasks []*task
}

// New creates a scheduler. Pass a nil clock to use the real clock.
func New(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, yield: DefaultYield}
}

// SetYield changes the pause between ticks. Non-positive values restore the
// default.
func (s *Scheduler) SetYield(d time.Duration) {
	if d <= 0 {
		d = DefaultYield
	}
	s.yield = d
}

// Every registers fn to run at most once per interval. An interval of zero
// runs fn on every tick. Tasks run in registration order. Every must not be
// called while Run is active.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFunc) {
	s.tasks = append(s.tasks, &task{name: name, interval: interval, fn: fn})
	log.Debug().
		Str("task", name).
		Dur("interval", interval).
		Msg("scheduler task registered")
}

// Tick runs every task that is due at now. A task is due on its first tick
// and whenever at least its interval has passed since it last ran. A task
// that overran its interval waits a full interval from when it finished.
func (s *Scheduler) Tick(now time.Time) {
	for _, t := range s.tasks {
		if t.ran && now.Sub(t.lastRun) < t.interval {
			continue
		}
		start := s.clock.Now()
		t.lastRun = now
		t.ran = true
		t.fn(now)

		if took := s.clock.Since(start); t.interval > 0 && took >= t.interval {
			t.lastRun = now.Add(took)
			log.Warn().
				Str("task", t.name).
				Dur("took", took).
				Dur("interval", t.interval).
				Msg("scheduler task overran its interval")
		}
	}
}

// Run ticks until ctx is done, yielding between ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Int("tasks", len(s.tasks)).
		Dur("yield", s.yield).
		Msg("scheduler started")

	for {
		s.Tick(s.clock.Now())

		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-s.clock.After(s.yield):
		}
	}
}
