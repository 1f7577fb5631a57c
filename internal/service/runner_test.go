package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TapeDeck/internal/bus"
	"TapeDeck/pkg/logger"
	"TapeDeck/pkg/metrics"
)

func newTestRunner(t *testing.T, interval time.Duration, tick TickFunc) *Runner {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return NewRunner("test", interval, tick, bus.New(metrics.Nop{}), l, metrics.Nop{})
}

func TestRunnerStartTicksImmediately(t *testing.T) {
	var ticks atomic.Int64
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	require.NoError(t, r.Start())
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseRunning, r.Phase())
}

func TestRunnerStartIdempotentWhileRunning(t *testing.T) {
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error { return nil })
	require.NoError(t, r.Start())
	defer r.Stop(context.Background())

	assert.NoError(t, r.Start())
	assert.Equal(t, PhaseRunning, r.Phase())
}

func TestRunnerPauseFromStoppedFails(t *testing.T) {
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error { return nil })
	err := r.Pause(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestRunnerPauseQuiescesTicks(t *testing.T) {
	var ticks atomic.Int64
	r := newTestRunner(t, 10*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})
	require.NoError(t, r.Start())
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, r.Pause(context.Background()))
	assert.Equal(t, PhasePaused, r.Phase())

	// once Pause has returned, no further tick may run
	settled := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestRunnerPauseTwiceIsNoop(t *testing.T) {
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error { return nil })
	require.NoError(t, r.Start())
	defer r.Stop(context.Background())

	require.NoError(t, r.Pause(context.Background()))
	assert.NoError(t, r.Pause(context.Background()))
}

func TestRunnerResumeRestartsTicking(t *testing.T) {
	var ticks atomic.Int64
	r := newTestRunner(t, 10*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})
	require.NoError(t, r.Start())
	defer r.Stop(context.Background())

	require.NoError(t, r.Pause(context.Background()))
	settled := ticks.Load()

	require.NoError(t, r.Resume())
	assert.Equal(t, PhaseRunning, r.Phase())
	require.Eventually(t, func() bool { return ticks.Load() > settled }, time.Second, time.Millisecond)
}

func TestRunnerResumeFromStoppedFails(t *testing.T) {
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error { return nil })
	assert.True(t, errors.Is(r.Resume(), ErrInvalidTransition))
}

func TestRunnerStopFromAnyPhase(t *testing.T) {
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error { return nil })

	// stopped: no-op
	require.NoError(t, r.Stop(context.Background()))

	// running
	require.NoError(t, r.Start())
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, PhaseStopped, r.Phase())

	// paused
	require.NoError(t, r.Start())
	require.NoError(t, r.Pause(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, PhaseStopped, r.Phase())
}

func TestRunnerRestartAfterStop(t *testing.T) {
	var ticks atomic.Int64
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})
	require.NoError(t, r.Start())
	require.NoError(t, r.Stop(context.Background()))

	require.NoError(t, r.Start())
	defer r.Stop(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestRunnerKickTriggersTick(t *testing.T) {
	var ticks atomic.Int64
	r := newTestRunner(t, time.Hour, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})
	require.NoError(t, r.Start())
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, time.Millisecond)
	r.Kick()
	require.Eventually(t, func() bool { return ticks.Load() == 2 }, time.Second, time.Millisecond)
}

func TestRunnerTickErrorKeepsLoopAlive(t *testing.T) {
	var ticks atomic.Int64
	r := newTestRunner(t, 10*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return errors.New("flaky upstream")
	})
	require.NoError(t, r.Start())
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, PhaseRunning, r.Phase())
}
