package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTick_IntervalGating(t *testing.T) {
	s := New(clockwork.NewFakeClock())
	base := time.Unix(0, 0)

	var every, http, socket int
	s.Every("display", 0, func(time.Time) { every++ })
	s.Every("http", 50*time.Millisecond, func(time.Time) { http++ })
	s.Every("socket", 100*time.Millisecond, func(time.Time) { socket++ })

	// 25 ticks 10ms apart cover 0..240ms
	for i := 0; i < 25; i++ {
		s.Tick(base.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	assert.Equal(t, 25, every)
	assert.Equal(t, 5, http)   // 0, 50, 100, 150, 200
	assert.Equal(t, 3, socket) // 0, 100, 200
}

func TestTick_FirstTickRunsEverything(t *testing.T) {
	s := New(nil)

	var ran []string
	s.Every("a", time.Hour, func(time.Time) { ran = append(ran, "a") })
	s.Every("b", time.Minute, func(time.Time) { ran = append(ran, "b") })

	s.Tick(time.Unix(0, 0))
	assert.Equal(t, []string{"a", "b"}, ran)

	s.Tick(time.Unix(1, 0))
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestTick_BoundaryIsInclusive(t *testing.T) {
	s := New(nil)
	base := time.Unix(100, 0)

	var count int
	s.Every("socket", 100*time.Millisecond, func(time.Time) { count++ })

	s.Tick(base)
	s.Tick(base.Add(99 * time.Millisecond))
	assert.Equal(t, 1, count)

	s.Tick(base.Add(100 * time.Millisecond))
	assert.Equal(t, 2, count)
}

func TestTick_LateTickDoesNotCatchUp(t *testing.T) {
	s := New(nil)
	base := time.Unix(100, 0)

	var count int
	s.Every("http", 50*time.Millisecond, func(time.Time) { count++ })

	s.Tick(base)
	s.Tick(base.Add(time.Second))
	s.Tick(base.Add(time.Second + 10*time.Millisecond))

	assert.Equal(t, 2, count)
}

func TestTick_PassesTickTime(t *testing.T) {
	s := New(nil)
	now := time.Unix(42, 0)

	var got time.Time
	s.Every("display", 0, func(t time.Time) { got = t })
	s.Tick(now)

	assert.Equal(t, now, got)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(clockwork.NewFakeClock())

	var count int
	s.Every("display", 0, func(time.Time) { count++ })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, count)
}

func TestRun_YieldsBetweenTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock)

	var count atomic.Int32
	s.Every("display", 0, func(time.Time) { count.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, int32(1), count.Load())

	clock.Advance(DefaultYield)
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, int32(2), count.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSetYield(t *testing.T) {
	s := New(nil)

	s.SetYield(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, s.yield)

	s.SetYield(0)
	assert.Equal(t, DefaultYield, s.yield)
}

func TestTick_OverrunningTaskWaitsFromFinish(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock)

	var slow, display int
	s.Every("slow", 100*time.Millisecond, func(time.Time) {
		slow++
		clock.Advance(150 * time.Millisecond)
	})
	s.Every("display", 0, func(time.Time) { display++ })

	start := clock.Now()
	s.Tick(start)
	assert.Equal(t, 1, slow)

	// the task finished at +150ms, so it is not due again until +250ms
	s.Tick(start.Add(150 * time.Millisecond))
	s.Tick(start.Add(240 * time.Millisecond))
	assert.Equal(t, 1, slow)
	assert.Equal(t, 3, display)

	s.Tick(start.Add(250 * time.Millisecond))
	assert.Equal(t, 2, slow)
}
