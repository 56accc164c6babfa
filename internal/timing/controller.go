// Package timing maps each media type to a (clock, offset) pair: shared or
// disconnected audio/video clocks, subtitle aliased to video, and
// reference-type selection for seeks and position queries.
package timing

import (
	"sync"
	"time"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/rtclock"
)

// DefaultMaxAllowedSkew is the default start-time skew beyond which
// audio/video are forced onto disconnected clocks.
const DefaultMaxAllowedSkew = 100 * time.Millisecond

// ComponentInfo is the subset of component state the controller needs at
// Setup time.
type ComponentInfo struct {
	Present   bool
	StartTime time.Duration
	Duration  time.Duration
}

// Options configures Setup.
type Options struct {
	Audio                ComponentInfo
	Video                ComponentInfo
	IsTimeSyncDisabled   bool
	MaxAllowedSkew       time.Duration // zero means DefaultMaxAllowedSkew
	IsLiveAndNotSeekable bool
}

// Controller maintains a mapping from media type to (clock, offset), plus
// the disconnected-clocks flag and the selected reference type.
type Controller struct {
	mu sync.Mutex

	ready                 bool
	hasDisconnectedClocks bool
	referenceType         avtype.MediaKind
	overrodeTimeSync      bool

	clocks    map[avtype.MediaKind]*rtclock.Clock
	offsets   map[avtype.MediaKind]time.Duration
	durations map[avtype.MediaKind]time.Duration
}

// New returns a not-ready controller; call Setup once component info is
// known.
func New() *Controller {
	return &Controller{
		clocks:    make(map[avtype.MediaKind]*rtclock.Clock),
		offsets:   make(map[avtype.MediaKind]time.Duration),
		durations: make(map[avtype.MediaKind]time.Duration),
	}
}

// Setup (re-)establishes the clock mapping. Previous clocks' positions and
// speed ratios are preserved across re-setup (the clock objects themselves
// are reused).
func (c *Controller) Setup(now time.Time, opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevClocks := c.clocks
	c.clocks = make(map[avtype.MediaKind]*rtclock.Clock)
	c.offsets = make(map[avtype.MediaKind]time.Duration)
	c.durations = make(map[avtype.MediaKind]time.Duration)
	c.overrodeTimeSync = false

	maxSkew := opts.MaxAllowedSkew
	if maxSkew == 0 {
		maxSkew = DefaultMaxAllowedSkew
	}

	switch {
	case opts.Audio.Present && opts.Video.Present:
		skew := opts.Audio.StartTime - opts.Video.StartTime
		if skew < 0 {
			skew = -skew
		}
		disconnect := opts.IsTimeSyncDisabled
		if !disconnect && skew > maxSkew {
			disconnect = true
			c.overrodeTimeSync = true
		}
		c.hasDisconnectedClocks = disconnect

		if disconnect {
			c.clocks[avtype.Audio] = reuseOrNew(prevClocks[avtype.Audio])
			c.clocks[avtype.Video] = reuseOrNew(prevClocks[avtype.Video])
			c.offsets[avtype.Audio] = opts.Audio.StartTime
			c.offsets[avtype.Video] = opts.Video.StartTime
		} else {
			shared := reuseOrNew(prevClocks[avtype.Audio])
			c.clocks[avtype.Audio] = shared
			c.clocks[avtype.Video] = shared
			c.offsets[avtype.Audio] = opts.Audio.StartTime
			c.offsets[avtype.Video] = opts.Audio.StartTime
		}
		c.durations[avtype.Audio] = opts.Audio.Duration
		c.durations[avtype.Video] = opts.Video.Duration

	case opts.Video.Present:
		c.hasDisconnectedClocks = false
		shared := reuseOrNew(prevClocks[avtype.Video])
		c.clocks[avtype.Video] = shared
		c.offsets[avtype.Video] = opts.Video.StartTime
		c.durations[avtype.Video] = opts.Video.Duration

	case opts.Audio.Present:
		c.hasDisconnectedClocks = false
		shared := reuseOrNew(prevClocks[avtype.Audio])
		c.clocks[avtype.Audio] = shared
		c.offsets[avtype.Audio] = opts.Audio.StartTime
		c.durations[avtype.Audio] = opts.Audio.Duration

	default:
		c.ready = false
		return
	}

	// subtitle is aliased to the video clock, or the shared clock if no
	// video is present.
	if videoClock, ok := c.clocks[avtype.Video]; ok {
		c.clocks[avtype.Subtitle] = videoClock
		c.offsets[avtype.Subtitle] = c.offsets[avtype.Video]
	} else if audioClock, ok := c.clocks[avtype.Audio]; ok {
		c.clocks[avtype.Subtitle] = audioClock
		c.offsets[avtype.Subtitle] = c.offsets[avtype.Audio]
	}

	// reference type: the continuous one (audio) for live non-seekable
	// sources, else the seekable media type (video if present, else audio).
	switch {
	case opts.IsLiveAndNotSeekable && opts.Audio.Present:
		c.referenceType = avtype.Audio
	case opts.Video.Present:
		c.referenceType = avtype.Video
	default:
		c.referenceType = avtype.Audio
	}

	c.ready = true
	_ = now
}

func reuseOrNew(prev *rtclock.Clock) *rtclock.Clock {
	if prev != nil {
		return prev
	}
	return rtclock.New()
}

// HasDisconnectedClocks reports whether audio and video currently advance
// independently.
func (c *Controller) HasDisconnectedClocks() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasDisconnectedClocks
}

// OverrodeTimeSync reports whether Setup forced disconnected clocks due to
// excessive start-time skew, overriding the configured option.
func (c *Controller) OverrodeTimeSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overrodeTimeSync
}

// ReferenceType returns the selected reference media type.
func (c *Controller) ReferenceType() avtype.MediaKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referenceType
}

// resolve maps a selector (possibly avtype.None or avtype.Reference) to the
// concrete kinds to operate on.
func (c *Controller) resolveLocked(selector avtype.MediaKind) []avtype.MediaKind {
	switch selector {
	case avtype.None:
		kinds := make([]avtype.MediaKind, 0, len(c.clocks))
		for k := range c.clocks {
			kinds = append(kinds, k)
		}
		return kinds
	case avtype.Reference:
		return []avtype.MediaKind{c.referenceType}
	default:
		return []avtype.MediaKind{selector}
	}
}

// GetPosition returns clock[t].position + offset[disconnected ? t : reference].
// No-op (returns 0) when not ready.
func (c *Controller) GetPosition(now time.Time, selector avtype.MediaKind) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return 0
	}
	kind := selector
	if kind == avtype.None || kind == avtype.Reference {
		kind = c.referenceType
	}
	clock, ok := c.clocks[kind]
	if !ok {
		return 0
	}
	offsetKind := kind
	if !c.hasDisconnectedClocks {
		offsetKind = c.referenceType
	}
	return clock.Position(now) + c.offsets[offsetKind]
}

// GetEndTime returns offset[t] + component.duration, or (0, false) if unset.
func (c *Controller) GetEndTime(selector avtype.MediaKind) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return 0, false
	}
	kind := selector
	if kind == avtype.None || kind == avtype.Reference {
		kind = c.referenceType
	}
	dur, ok := c.durations[kind]
	if !ok {
		return 0, false
	}
	return c.offsets[kind] + dur, true
}

// Play starts the clock(s) selected by selector (avtype.None means all).
func (c *Controller) Play(now time.Time, selector avtype.MediaKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return
	}
	seen := make(map[*rtclock.Clock]bool)
	for _, k := range c.resolveLocked(selector) {
		if clk, ok := c.clocks[k]; ok && !seen[clk] {
			clk.Play(now)
			seen[clk] = true
		}
	}
}

// Pause pauses the clock(s) selected by selector.
func (c *Controller) Pause(now time.Time, selector avtype.MediaKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return
	}
	seen := make(map[*rtclock.Clock]bool)
	for _, k := range c.resolveLocked(selector) {
		if clk, ok := c.clocks[k]; ok && !seen[clk] {
			clk.Pause(now)
			seen[clk] = true
		}
	}
}

// Restart re-bases the clock(s) for selector to the given offset and starts
// them running.
func (c *Controller) Restart(now time.Time, selector avtype.MediaKind, offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return
	}
	for _, k := range c.resolveLocked(selector) {
		if clk, ok := c.clocks[k]; ok {
			clk.Restart(now, offset)
		}
		c.offsets[k] = 0
	}
}

// Reset re-bases the clock(s) for selector to zero and stops them, so the
// reported position freezes at the start of the media.
func (c *Controller) Reset(now time.Time, selector avtype.MediaKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return
	}
	seen := make(map[*rtclock.Clock]bool)
	for _, k := range c.resolveLocked(selector) {
		if clk, ok := c.clocks[k]; ok && !seen[clk] {
			clk.Reset(now)
			seen[clk] = true
		}
	}
}

// ClampInto re-bases the clock for kind so its position lies within
// [lo, hi], used by the render worker to keep clocks aligned to buffer
// ranges.
func (c *Controller) ClampInto(now time.Time, kind avtype.MediaKind, lo, hi time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || lo > hi {
		return
	}
	clk, ok := c.clocks[kind]
	if !ok {
		return
	}
	pos := clk.Position(now)
	offsetKind := kind
	if !c.hasDisconnectedClocks {
		offsetKind = c.referenceType
	}
	absolute := pos + c.offsets[offsetKind]
	if absolute < lo {
		clk.Update(now, lo-c.offsets[offsetKind])
	} else if absolute > hi {
		clk.Update(now, hi-c.offsets[offsetKind])
	}
}

// SnapTo re-bases the clock(s) for selector to the given absolute position
// without changing whether they're running, used to pin the position to the
// end of buffered data once end of playback is detected.
func (c *Controller) SnapTo(now time.Time, selector avtype.MediaKind, pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return
	}
	for _, k := range c.resolveLocked(selector) {
		clk, ok := c.clocks[k]
		if !ok {
			continue
		}
		offsetKind := k
		if !c.hasDisconnectedClocks {
			offsetKind = c.referenceType
		}
		clk.Update(now, pos-c.offsets[offsetKind])
	}
}

// SetSpeedRatio changes the playback speed of the clock(s) selected by
// selector, re-basing each clock's offset first so the position reported
// immediately before and after the call is identical.
func (c *Controller) SetSpeedRatio(now time.Time, selector avtype.MediaKind, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || ratio < 0 {
		return
	}
	seen := make(map[*rtclock.Clock]bool)
	for _, k := range c.resolveLocked(selector) {
		if clk, ok := c.clocks[k]; ok && !seen[clk] {
			clk.SetSpeedRatio(now, ratio)
			seen[clk] = true
		}
	}
}

// SpeedRatio returns the current speed ratio of the selected clock, or 1.0
// when not ready.
func (c *Controller) SpeedRatio(selector avtype.MediaKind) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return 1.0
	}
	kind := selector
	if kind == avtype.None || kind == avtype.Reference {
		kind = c.referenceType
	}
	clk, ok := c.clocks[kind]
	if !ok {
		return 1.0
	}
	return clk.SpeedRatio()
}

// Running reports whether the clock for kind is currently advancing.
func (c *Controller) Running(kind avtype.MediaKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	clk, ok := c.clocks[kind]
	if !ok {
		return false
	}
	return clk.Running()
}

// Ready reports whether Setup has established a usable clock mapping.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}
