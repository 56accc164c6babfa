package rtclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockPlayAdvancesMonotonically(t *testing.T) {
	c := New()
	t0 := time.Now()
	c.Play(t0)

	p1 := c.Position(t0.Add(500 * time.Millisecond))
	p2 := c.Position(t0.Add(time.Second))
	require.GreaterOrEqual(t, p2, p1)
	require.InDelta(t, float64(500*time.Millisecond), float64(p1), float64(5*time.Millisecond))
}

func TestClockPauseFreezesPosition(t *testing.T) {
	c := New()
	t0 := time.Now()
	c.Play(t0)
	t1 := t0.Add(time.Second)
	c.Pause(t1)

	p := c.Position(t1.Add(time.Second))
	require.Equal(t, c.Position(t1), p)
}

func TestClockResetStops(t *testing.T) {
	c := New()
	t0 := time.Now()
	c.Play(t0)
	c.Reset(t0.Add(time.Second))
	require.False(t, c.Running())
	require.Equal(t, time.Duration(0), c.Position(t0.Add(2*time.Second)))
}

func TestClockRestartSetsOffsetAndRuns(t *testing.T) {
	c := New()
	t0 := time.Now()
	c.Restart(t0, 5*time.Second)
	require.True(t, c.Running())
	require.Equal(t, 5*time.Second, c.Position(t0))
}

func TestClockSpeedRatioPreservesContinuity(t *testing.T) {
	c := New()
	t0 := time.Now()
	c.Play(t0)
	t1 := t0.Add(time.Second)
	before := c.Position(t1)
	c.SetSpeedRatio(t1, 2.0)
	after := c.Position(t1)
	require.Equal(t, before, after)

	later := c.Position(t1.Add(time.Second))
	require.InDelta(t, float64(before+2*time.Second), float64(later), float64(5*time.Millisecond))
}

func TestClockIdempotentPause(t *testing.T) {
	c := New()
	t0 := time.Now()
	c.Play(t0)
	c.Pause(t0.Add(time.Second))
	p1 := c.Position(t0.Add(2 * time.Second))
	c.Pause(t0.Add(3 * time.Second))
	p2 := c.Position(t0.Add(4 * time.Second))
	require.Equal(t, p1, p2)
}
