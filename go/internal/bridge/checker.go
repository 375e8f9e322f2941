package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arenatimer/go/clients/arena_timer_client"
	"github.com/rs/zerolog/log"
)

// StatusSource is the part of the device API the checker polls.
type StatusSource interface {
	Status(ctx context.Context) (arena_timer_client.Status, error)
}

// Checker periodically checks the arena timer and logs when it comes and
// goes.
type Checker struct {
	source   StatusSource
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock

	reachable atomic.Bool
	checked   atomic.Bool
}

func NewChecker(source StatusSource, interval time.Duration, clock clockwork.Clock) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{
		source:   source,
		interval: interval,
		timeout:  2 * time.Second,
		clock:    clock,
	}
}

// Reachable reports the result of the last check.
func (c *Checker) Reachable() bool {
	return c.reachable.Load()
}

// Check asks once and returns whether the device answered.
func (c *Checker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.source.Status(ctx)
	ok := err == nil
	prev := c.reachable.Swap(ok)
	first := !c.checked.Swap(true)

	switch {
	case ok && (first || !prev):
		log.Info().Msg("arena timer reachable")
	case !ok && (first || prev):
		log.Warn().Err(err).Msg("arena timer unreachable")
	}
	return ok
}

// Run checks immediately and then every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			c.Check(ctx)
		}
	}
}
