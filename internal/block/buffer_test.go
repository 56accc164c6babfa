package block

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/decoder"
)

// fixedMaterializer returns one fixed-duration block per call, reading the
// start time off the frame's PTS, enough to drive Buffer through its
// invariants without needing a real codec.
type fixedMaterializer struct {
	dur  time.Duration
	fail bool
}

func (m *fixedMaterializer) Materialize(frame *decoder.Frame, previous *Block) ([]byte, time.Duration, time.Duration, int, int, bool, error) {
	if m.fail {
		return nil, 0, 0, 0, 0, false, nil
	}
	return []byte{1, 2, 3}, frame.PTS, m.dur, 0, 10, true, nil
}

func TestBufferCapacityInvariant(t *testing.T) {
	b := NewBuffer(avtype.Video, 4)
	require.Equal(t, 4, b.Capacity())
	require.Equal(t, 0, b.Count())
	require.True(t, len(b.pool) == 4)
}

func TestBufferAddKeepsPlaybackSorted(t *testing.T) {
	b := NewBuffer(avtype.Video, 8)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}

	pts := []time.Duration{300 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}
	for _, p := range pts {
		_, err := b.Add(&decoder.Frame{PTS: p}, m)
		require.NoError(t, err)
	}

	require.Equal(t, 3, b.Count())
	var last time.Duration = -1
	for _, blk := range b.playback {
		require.True(t, blk.startTime > last)
		last = blk.startTime
	}
	require.Equal(t, 8, len(b.pool)+len(b.playback))
}

func TestBufferDedupeSameStartTime(t *testing.T) {
	b := NewBuffer(avtype.Video, 4)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}

	_, err := b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, m)
	require.NoError(t, err)
	_, err = b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, m)
	require.NoError(t, err)

	require.Equal(t, 1, b.Count())
}

func TestBufferEvictsOldestWhenPoolEmpty(t *testing.T) {
	b := NewBuffer(avtype.Video, 2)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}

	_, err := b.Add(&decoder.Frame{PTS: 0}, m)
	require.NoError(t, err)
	_, err = b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, m)
	require.NoError(t, err)
	_, err = b.Add(&decoder.Frame{PTS: 200 * time.Millisecond}, m)
	require.NoError(t, err)

	require.Equal(t, 2, b.Count())
	require.Equal(t, 100*time.Millisecond, b.RangeStartTime())
}

func TestBufferMaterializeFailureSkipsAdd(t *testing.T) {
	b := NewBuffer(avtype.Video, 4)
	m := &fixedMaterializer{fail: true}

	blk, err := b.Add(&decoder.Frame{PTS: 0}, m)
	require.NoError(t, err)
	require.Nil(t, blk)
	require.Equal(t, 0, b.Count())
}

func TestBufferClearReturnsToPool(t *testing.T) {
	b := NewBuffer(avtype.Video, 4)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}
	_, _ = b.Add(&decoder.Frame{PTS: 0}, m)
	_, _ = b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, m)

	b.Clear()
	require.Equal(t, 0, b.Count())
	require.Equal(t, 4, len(b.pool))
	require.True(t, b.IsMonotonic())
}

func TestBufferMonotonicStickyFlag(t *testing.T) {
	b := NewBuffer(avtype.Video, 8)
	_, _ = b.Add(&decoder.Frame{PTS: 0}, &fixedMaterializer{dur: 100 * time.Millisecond})
	require.True(t, b.IsMonotonic())

	_, _ = b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, &fixedMaterializer{dur: 200 * time.Millisecond})
	require.False(t, b.IsMonotonic())

	// stays non-monotonic even if a later block matches duration again
	_, _ = b.Add(&decoder.Frame{PTS: 300 * time.Millisecond}, &fixedMaterializer{dur: 200 * time.Millisecond})
	require.False(t, b.IsMonotonic())
}

func TestBufferGetSnapPositionRoundTrip(t *testing.T) {
	b := NewBuffer(avtype.Video, 8)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}
	for i := 0; i < 3; i++ {
		_, _ = b.Add(&decoder.Frame{PTS: time.Duration(i) * 100 * time.Millisecond}, m)
	}

	pos, ok := b.GetSnapPosition(100 * time.Millisecond)
	require.True(t, ok)
	require.Equal(t, 100*time.Millisecond, pos)

	pos, ok = b.GetSnapPosition(200*time.Millisecond + time.Millisecond)
	require.True(t, ok)
	require.Equal(t, 200*time.Millisecond, pos)
}

func TestBufferGetRangePercent(t *testing.T) {
	b := NewBuffer(avtype.Video, 8)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}
	_, _ = b.Add(&decoder.Frame{PTS: 0}, m)
	_, _ = b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, m)

	require.InDelta(t, 0.5, b.GetRangePercent(100*time.Millisecond), 0.001)
}

func TestBufferRangeBitRateRequiresTwoBlocks(t *testing.T) {
	b := NewBuffer(avtype.Video, 8)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}
	_, _ = b.Add(&decoder.Frame{PTS: 0}, m)
	require.Equal(t, 0.0, b.RangeBitRate())

	_, _ = b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, m)
	require.Greater(t, b.RangeBitRate(), 0.0)
}

func TestBufferContinuousNext(t *testing.T) {
	b := NewBuffer(avtype.Video, 8)
	m := &fixedMaterializer{dur: 100 * time.Millisecond}
	_, _ = b.Add(&decoder.Frame{PTS: 0}, m)
	_, _ = b.Add(&decoder.Frame{PTS: 100 * time.Millisecond}, m)

	_, _, cur := b.Neighbors(0)
	require.NotNil(t, cur)
	next := b.ContinuousNext(cur, time.Millisecond)
	require.NotNil(t, next)
	require.Equal(t, 100*time.Millisecond, next.StartTime())
}
