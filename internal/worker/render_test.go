package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
	"github.com/erparts/avplay/internal/decoder"
)

type fakeTiming struct {
	ready        bool
	pos          map[avtype.MediaKind]time.Duration
	refType      avtype.MediaKind
	disconnected bool

	playCalls  []avtype.MediaKind
	pauseCalls []avtype.MediaKind
	clamped    []avtype.MediaKind
	snapped    map[avtype.MediaKind]time.Duration
}

func newFakeTiming() *fakeTiming {
	return &fakeTiming{
		ready:   true,
		pos:     make(map[avtype.MediaKind]time.Duration),
		refType: avtype.Video,
		snapped: make(map[avtype.MediaKind]time.Duration),
	}
}

func (f *fakeTiming) Ready() bool { return f.ready }
func (f *fakeTiming) GetPosition(now time.Time, selector avtype.MediaKind) time.Duration {
	return f.pos[selector]
}
func (f *fakeTiming) HasDisconnectedClocks() bool     { return f.disconnected }
func (f *fakeTiming) ReferenceType() avtype.MediaKind { return f.refType }
func (f *fakeTiming) Play(now time.Time, selector avtype.MediaKind) {
	f.playCalls = append(f.playCalls, selector)
}
func (f *fakeTiming) Pause(now time.Time, selector avtype.MediaKind) {
	f.pauseCalls = append(f.pauseCalls, selector)
}
func (f *fakeTiming) ClampInto(now time.Time, kind avtype.MediaKind, lo, hi time.Duration) {
	f.clamped = append(f.clamped, kind)
}
func (f *fakeTiming) SnapTo(now time.Time, selector avtype.MediaKind, pos time.Duration) {
	f.snapped[selector] = pos
}

type fakeMaterializer struct {
	start time.Duration
	dur   time.Duration
}

func (m fakeMaterializer) Materialize(_ *decoder.Frame, _ *block.Block) ([]byte, time.Duration, time.Duration, int, int, bool, error) {
	return []byte{1}, m.start, m.dur, 0, 0, true, nil
}

func addBlock(t *testing.T, buf *block.Buffer, start, dur time.Duration) {
	t.Helper()
	_, err := buf.Add(&decoder.Frame{}, fakeMaterializer{start: start, dur: dur})
	require.NoError(t, err)
}

func TestRenderWorkerSkipsWhenNotReady(t *testing.T) {
	buf := block.NewBuffer(avtype.Video, 2)
	timing := newFakeTiming()
	timing.ready = false
	called := false
	w := NewRenderWorker(timing, map[avtype.MediaKind]*block.Buffer{avtype.Video: buf}, func(avtype.MediaKind, *block.Block) {
		called = true
	}, nil, nil)
	require.NoError(t, w.cycle())
	require.False(t, called)
}

func TestRenderWorkerPresentsOnlyOncePerBlock(t *testing.T) {
	buf := block.NewBuffer(avtype.Video, 2)
	timing := newFakeTiming()
	presentCount := 0
	w := NewRenderWorker(timing, map[avtype.MediaKind]*block.Buffer{avtype.Video: buf}, func(avtype.MediaKind, *block.Block) {
		presentCount++
	}, nil, nil)

	// empty buffer: nothing to present yet.
	require.NoError(t, w.cycle())
	require.Equal(t, 0, presentCount)

	addBlock(t, buf, 0, 100*time.Millisecond)
	require.NoError(t, w.cycle())
	require.NoError(t, w.cycle())
	require.Equal(t, 1, presentCount)
}

func TestRenderWorkerAlignsClockToBufferRange(t *testing.T) {
	buf := block.NewBuffer(avtype.Video, 2)
	addBlock(t, buf, 0, 100*time.Millisecond)
	timing := newFakeTiming()

	w := NewRenderWorker(timing, map[avtype.MediaKind]*block.Buffer{avtype.Video: buf}, nil, nil, nil)
	require.NoError(t, w.cycle())
	require.Contains(t, timing.clamped, avtype.Video)
}

func TestRenderWorkerPausesClockWhenBufferEmpty(t *testing.T) {
	buf := block.NewBuffer(avtype.Video, 2)
	timing := newFakeTiming()

	w := NewRenderWorker(timing, map[avtype.MediaKind]*block.Buffer{avtype.Video: buf}, nil, nil, nil)
	require.NoError(t, w.cycle())
	require.Contains(t, timing.pauseCalls, avtype.Video)
}

func TestRenderWorkerEntersSyncBufferingOnStarvedAudio(t *testing.T) {
	videoBuf := block.NewBuffer(avtype.Video, 4)
	addBlock(t, videoBuf, 0, 100*time.Millisecond)
	addBlock(t, videoBuf, 100*time.Millisecond, 100*time.Millisecond)
	audioBuf := block.NewBuffer(avtype.Audio, 4)

	timing := newFakeTiming()
	w := NewRenderWorker(timing, map[avtype.MediaKind]*block.Buffer{
		avtype.Video: videoBuf,
		avtype.Audio: audioBuf,
	}, nil, nil, nil)

	require.NoError(t, w.cycle())
	require.True(t, w.syncBuffering)

	select {
	case ev := <-w.Events():
		require.Equal(t, EventBufferingStarted, ev.Kind)
	default:
		t.Fatal("expected a buffering-started event")
	}
}

func TestRenderWorkerExitsSyncBufferingOnceAudioCatchesUp(t *testing.T) {
	videoBuf := block.NewBuffer(avtype.Video, 4)
	addBlock(t, videoBuf, 0, 100*time.Millisecond)
	addBlock(t, videoBuf, 100*time.Millisecond, 100*time.Millisecond)
	audioBuf := block.NewBuffer(avtype.Audio, 4)

	timing := newFakeTiming()
	w := NewRenderWorker(timing, map[avtype.MediaKind]*block.Buffer{
		avtype.Video: videoBuf,
		avtype.Audio: audioBuf,
	}, nil, nil, nil)

	require.NoError(t, w.cycle())
	require.True(t, w.syncBuffering)
	<-w.Events() // drain buffering-started

	// audio catches up past the video buffer's midpoint.
	addBlock(t, audioBuf, 0, 200*time.Millisecond)
	require.NoError(t, w.cycle())
	require.False(t, w.syncBuffering)

	select {
	case ev := <-w.Events():
		require.Equal(t, EventBufferingEnded, ev.Kind)
	default:
		t.Fatal("expected a buffering-ended event")
	}
}

func TestRenderWorkerDetectsEndOfPlaybackOnce(t *testing.T) {
	buf := block.NewBuffer(avtype.Video, 2)
	addBlock(t, buf, 0, 100*time.Millisecond)

	timing := newFakeTiming()
	timing.pos[avtype.Video] = 100 * time.Millisecond // already at range_end
	ended := true

	var events []EventKind
	w := NewRenderWorker(timing, map[avtype.MediaKind]*block.Buffer{avtype.Video: buf}, nil, func() bool { return ended }, nil)

	require.NoError(t, w.cycle())
	require.True(t, w.mediaEnded)
	require.Equal(t, 100*time.Millisecond, timing.snapped[avtype.Video])
	require.Contains(t, timing.pauseCalls, avtype.None)

	for {
		select {
		case ev := <-w.Events():
			events = append(events, ev.Kind)
			continue
		default:
		}
		break
	}
	require.Equal(t, []EventKind{EventMediaEnded}, events)

	// a second cycle must not fire media-ended again.
	require.NoError(t, w.cycle())
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected second event %v", ev.Kind)
	default:
	}
}
