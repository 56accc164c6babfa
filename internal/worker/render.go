package worker

import (
	"time"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
)

// timingSource is the subset of timing.Controller the Render Worker needs
// to align clocks to buffered data, enter/exit sync-buffering, and detect
// end of playback.
type timingSource interface {
	Ready() bool
	GetPosition(now time.Time, selector avtype.MediaKind) time.Duration
	HasDisconnectedClocks() bool
	ReferenceType() avtype.MediaKind
	Play(now time.Time, selector avtype.MediaKind)
	Pause(now time.Time, selector avtype.MediaKind)
	ClampInto(now time.Time, kind avtype.MediaKind, lo, hi time.Duration)
	SnapTo(now time.Time, selector avtype.MediaKind, pos time.Duration)
}

// Presenter hands a block to the outside world (draw a video frame, queue
// PCM for playback, surface subtitle text). It is called at most once per
// distinct block per media type, except for repeated-delivery types (audio)
// which are handed over on every cycle they remain current.
type Presenter func(kind avtype.MediaKind, blk *block.Block)

// RenderWorker walks each media type's buffer at the clock's current
// position, aligns clocks to the data actually buffered, enters/exits a
// transient sync-buffering pause on component starvation, detects end of
// playback, and hands off whichever block is current to present.
//
// The seek-blocked wait of step 1 has no equivalent here: Engine.Seek
// already pauses every worker for the duration of the seek, so the render
// cycle never observes an in-flight seek.
type RenderWorker struct {
	base
	timing        timingSource
	buffers       map[avtype.MediaKind]*block.Buffer
	present       Presenter
	decodingEnded func() bool
	onError       func(error)

	events    chan Event
	lastBlock map[avtype.MediaKind]*block.Block

	syncBuffering bool
	mediaEnded    bool
}

// NewRenderWorker builds a Render Worker over buffers, driven by timing.
// decodingEnded reports whether the Decode Worker has stopped producing new
// blocks and the container is at end of stream; it may be nil, in which
// case end-of-playback detection never fires.
func NewRenderWorker(timing timingSource, buffers map[avtype.MediaKind]*block.Buffer, present Presenter, decodingEnded func() bool, onError func(error)) *RenderWorker {
	return &RenderWorker{
		base:          newBase(),
		timing:        timing,
		buffers:       buffers,
		present:       present,
		decodingEnded: decodingEnded,
		onError:       onError,
		events:        make(chan Event, 16),
		lastBlock:     make(map[avtype.MediaKind]*block.Block),
	}
}

// Events returns the channel sync-buffering and media-ended notifications
// are delivered on. Never closed; stop reading once the owning Engine is
// closed.
func (w *RenderWorker) Events() <-chan Event { return w.events }

func (w *RenderWorker) emit(kind EventKind, now time.Time) {
	select {
	case w.events <- Event{Kind: kind, At: now}:
	default:
	}
}

// Start launches the dedicated render loop at the given tick interval.
// Keep it sub-frame so presentation lags the clock as little as possible
// without busy-spinning.
func (w *RenderWorker) Start(tick time.Duration) {
	w.run(tick, w.cycle, w.onError)
}

// Step executes exactly one render pass, useful for deterministic tests.
func (w *RenderWorker) Step() error { return w.cycle() }

// ResetEndOfPlayback clears the one-shot end-of-playback latch and forgets
// any per-block presentation history, letting the cycle detect and present
// again after a stop or seek moves the position away from range_end. Only
// safe to call while the worker is not Running (e.g. right after Pause()).
func (w *RenderWorker) ResetEndOfPlayback() {
	w.mediaEnded = false
	w.syncBuffering = false
	w.lastBlock = make(map[avtype.MediaKind]*block.Block)
}

func (w *RenderWorker) cycle() error {
	if !w.timing.Ready() {
		return nil
	}
	now := time.Now()
	mainKind := w.timing.ReferenceType()
	disconnected := w.timing.HasDisconnectedClocks()

	w.alignClocks(now, mainKind, disconnected)

	if w.shouldEnterSyncBuffering(mainKind) {
		w.enterSyncBuffering(now, mainKind)
	}

	w.renderBlocks(now)

	if w.detectEndOfPlayback(now, mainKind, disconnected) {
		return nil
	}

	if w.syncBuffering && w.shouldExitSyncBuffering(mainKind, disconnected) {
		w.exitSyncBuffering(now)
	}

	w.resumePlayback(now, mainKind, disconnected)

	return nil
}

// alignClocks pauses a component's clock once its buffer runs dry, and
// otherwise clamps it into the buffered range so a stale clock never
// reports a position outside the data actually on hand. With disconnected
// clocks every non-subtitle component is aligned independently; otherwise
// only the reference type is, since every other type shares its clock.
func (w *RenderWorker) alignClocks(now time.Time, mainKind avtype.MediaKind, disconnected bool) {
	for _, kind := range w.alignKinds(mainKind, disconnected) {
		buf := w.buffers[kind]
		if buf == nil {
			continue
		}
		if buf.Count() == 0 {
			w.timing.Pause(now, kind)
			continue
		}
		w.timing.ClampInto(now, kind, buf.RangeStartTime(), buf.RangeEndTime())
	}
}

func (w *RenderWorker) alignKinds(mainKind avtype.MediaKind, disconnected bool) []avtype.MediaKind {
	if !disconnected {
		return []avtype.MediaKind{mainKind}
	}
	return w.nonSubtitleKinds()
}

func (w *RenderWorker) nonSubtitleKinds() []avtype.MediaKind {
	kinds := make([]avtype.MediaKind, 0, len(w.buffers))
	for kind := range w.buffers {
		if kind == avtype.Subtitle {
			continue
		}
		kinds = append(kinds, kind)
	}
	return kinds
}

// shouldEnterSyncBuffering reports whether some non-main component has run
// dry or fallen entirely behind the main buffer's start.
func (w *RenderWorker) shouldEnterSyncBuffering(mainKind avtype.MediaKind) bool {
	if w.syncBuffering || w.mediaEnded {
		return false
	}
	mainBuf := w.buffers[mainKind]
	if mainBuf == nil || mainBuf.Count() == 0 {
		return false
	}
	mainStart := mainBuf.RangeStartTime()
	for kind, buf := range w.buffers {
		if kind == mainKind || kind == avtype.Subtitle || buf == nil {
			continue
		}
		if buf.Count() == 0 || buf.RangeEndTime() < mainStart {
			return true
		}
	}
	return false
}

func (w *RenderWorker) enterSyncBuffering(now time.Time, mainKind avtype.MediaKind) {
	w.syncBuffering = true
	w.timing.Pause(now, mainKind)
	w.emit(EventBufferingStarted, now)
}

// shouldExitSyncBuffering reports whether buffering has recovered (every
// non-main component now has data past the main buffer's midpoint) or a
// must-exit condition holds: cancellation, decoding ended, or disconnected
// clocks (which make the starvation check itself moot, since each clock
// already advances independently).
func (w *RenderWorker) shouldExitSyncBuffering(mainKind avtype.MediaKind, disconnected bool) bool {
	if w.cancelled() {
		return true
	}
	if w.decodingEnded != nil && w.decodingEnded() {
		return true
	}
	if disconnected {
		return true
	}
	mainBuf := w.buffers[mainKind]
	if mainBuf == nil || mainBuf.Count() == 0 {
		return false
	}
	mid := mainBuf.RangeMidTime()
	for kind, buf := range w.buffers {
		if kind == mainKind || kind == avtype.Subtitle || buf == nil {
			continue
		}
		if buf.Count() == 0 || buf.RangeEndTime() < mid {
			return false
		}
	}
	return true
}

func (w *RenderWorker) exitSyncBuffering(now time.Time) {
	w.syncBuffering = false
	w.emit(EventBufferingEnded, now)
}

// renderBlocks picks the block at each media type's current clock position
// and hands it to present. Audio is delivered on every cycle it's current
// (a repeated-delivery type, same as attached-picture/still frames would
// be), other types only once per distinct block.
func (w *RenderWorker) renderBlocks(now time.Time) {
	for kind, buf := range w.buffers {
		if buf == nil || buf.Count() == 0 {
			continue
		}
		pos := w.timing.GetPosition(now, kind)
		_, _, current := buf.Neighbors(pos)
		if current == nil {
			continue
		}
		repeat := kind == avtype.Audio
		if !repeat && current == w.lastBlock[kind] {
			continue
		}
		w.lastBlock[kind] = current
		if w.present != nil {
			w.present(kind, current)
		}
	}
}

// detectEndOfPlayback reports whether playback has reached end of stream:
// decoding has ended and no clock (or, with disconnected clocks, every
// clock) can advance any further. On first detection it pauses, snaps
// position to range_end, and fires a one-shot media-ended event.
func (w *RenderWorker) detectEndOfPlayback(now time.Time, mainKind avtype.MediaKind, disconnected bool) bool {
	if w.mediaEnded {
		return true
	}
	if w.decodingEnded == nil || !w.decodingEnded() {
		return false
	}
	if w.canAdvance(now, mainKind) {
		return false
	}
	if disconnected {
		for kind := range w.buffers {
			if kind == avtype.Subtitle {
				continue
			}
			if w.canAdvance(now, kind) {
				return false
			}
		}
	}

	w.timing.Pause(now, avtype.None)
	w.snapToEnd(now, mainKind, disconnected)
	w.mediaEnded = true
	w.emit(EventMediaEnded, now)
	return true
}

func (w *RenderWorker) snapToEnd(now time.Time, mainKind avtype.MediaKind, disconnected bool) {
	for _, kind := range w.alignKinds(mainKind, disconnected) {
		buf := w.buffers[kind]
		if buf == nil || buf.Count() == 0 {
			continue
		}
		w.timing.SnapTo(now, kind, buf.RangeEndTime())
	}
}

// canAdvance reports whether kind's clock still has buffered data ahead of
// its current position.
func (w *RenderWorker) canAdvance(now time.Time, kind avtype.MediaKind) bool {
	buf := w.buffers[kind]
	if buf == nil || buf.Count() == 0 {
		return false
	}
	return w.timing.GetPosition(now, kind) < buf.RangeEndTime()
}

// resumePlayback restarts whichever clocks were paused for alignment or
// sync-buffering, provided each one still has data ahead of it to advance
// into. The cycle only runs while the worker's own state is Running (see
// base.run), which stands in for the engine's Playing state.
func (w *RenderWorker) resumePlayback(now time.Time, mainKind avtype.MediaKind, disconnected bool) {
	if w.syncBuffering {
		return
	}
	for _, kind := range w.alignKinds(mainKind, disconnected) {
		if w.canAdvance(now, kind) {
			w.timing.Play(now, kind)
		}
	}
}
